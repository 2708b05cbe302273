package config

import (
	"time"

	"github.com/pulsekit/pulsekit/internal/bytesize"
	"github.com/pulsekit/pulsekit/pkg/storage"
	"github.com/pulsekit/pulsekit/pkg/upload"
)

// PerformancePreset bundles every batching and pacing knob. The SDK ships
// three named presets; features may override single fields at
// registration.
type PerformancePreset struct {
	// MaxFileSize closes a batch once its size would exceed this.
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxObjectSize drops single events larger than this.
	MaxObjectSize bytesize.ByteSize `mapstructure:"max_object_size" yaml:"max_object_size"`

	// MaxObjectsInFile closes a batch after this many events.
	MaxObjectsInFile int `mapstructure:"max_objects_in_file" yaml:"max_objects_in_file"`

	// MaxFileAgeForWrite closes a batch this old on the next write.
	MaxFileAgeForWrite time.Duration `mapstructure:"max_file_age_for_write" yaml:"max_file_age_for_write"`

	// MinFileAgeForRead hides a batch from the uploader until the writer
	// can no longer append to it. Must exceed MaxFileAgeForWrite.
	MinFileAgeForRead time.Duration `mapstructure:"min_file_age_for_read" yaml:"min_file_age_for_read"`

	// MaxFileAgeForRead deletes batches too old to be worth uploading.
	MaxFileAgeForRead time.Duration `mapstructure:"max_file_age_for_read" yaml:"max_file_age_for_read"`

	// MaxDirectorySize caps each consent partition of a feature
	// separately, evicting oldest batches first; the sum across a
	// feature's partitions is not capped.
	MaxDirectorySize bytesize.ByteSize `mapstructure:"max_directory_size" yaml:"max_directory_size"`

	// MinUploadDelay / MaxUploadDelay bound the adaptive upload pace.
	MinUploadDelay time.Duration `mapstructure:"min_upload_delay" yaml:"min_upload_delay"`
	MaxUploadDelay time.Duration `mapstructure:"max_upload_delay" yaml:"max_upload_delay"`

	// InitialUploadDelay is the pace at SDK start.
	InitialUploadDelay time.Duration `mapstructure:"initial_upload_delay" yaml:"initial_upload_delay"`

	// UploadDelayChangeRate is the multiplicative pacing step.
	UploadDelayChangeRate float64 `mapstructure:"upload_delay_change_rate" yaml:"upload_delay_change_rate"`
}

// Preset names accepted in configuration.
const (
	PresetBalanced   = "balanced"
	PresetLowPower   = "low_power"
	PresetAggressive = "aggressive"
)

// PresetByName resolves a named preset.
func PresetByName(name string) (PerformancePreset, bool) {
	switch name {
	case PresetBalanced, "":
		return balancedPreset(), true
	case PresetLowPower:
		return lowPowerPreset(), true
	case PresetAggressive:
		return aggressivePreset(), true
	}
	return PerformancePreset{}, false
}

func balancedPreset() PerformancePreset {
	return PerformancePreset{
		MaxFileSize:           4 * bytesize.MiB,
		MaxObjectSize:         512 * bytesize.KiB,
		MaxObjectsInFile:      500,
		MaxFileAgeForWrite:    5 * time.Second,
		MinFileAgeForRead:     6 * time.Second,
		MaxFileAgeForRead:     18 * time.Hour,
		MaxDirectorySize:      512 * bytesize.MiB,
		MinUploadDelay:        time.Second,
		MaxUploadDelay:        20 * time.Second,
		InitialUploadDelay:    5 * time.Second,
		UploadDelayChangeRate: 0.1,
	}
}

func lowPowerPreset() PerformancePreset {
	return PerformancePreset{
		MaxFileSize:           4 * bytesize.MiB,
		MaxObjectSize:         512 * bytesize.KiB,
		MaxObjectsInFile:      1000,
		MaxFileAgeForWrite:    60 * time.Second,
		MinFileAgeForRead:     75 * time.Second,
		MaxFileAgeForRead:     18 * time.Hour,
		MaxDirectorySize:      512 * bytesize.MiB,
		MinUploadDelay:        20 * time.Second,
		MaxUploadDelay:        5 * time.Minute,
		InitialUploadDelay:    60 * time.Second,
		UploadDelayChangeRate: 0.1,
	}
}

func aggressivePreset() PerformancePreset {
	return PerformancePreset{
		MaxFileSize:           4 * bytesize.MiB,
		MaxObjectSize:         512 * bytesize.KiB,
		MaxObjectsInFile:      100,
		MaxFileAgeForWrite:    time.Second,
		MinFileAgeForRead:     2 * time.Second,
		MaxFileAgeForRead:     18 * time.Hour,
		MaxDirectorySize:      512 * bytesize.MiB,
		MinUploadDelay:        500 * time.Millisecond,
		MaxUploadDelay:        10 * time.Second,
		InitialUploadDelay:    time.Second,
		UploadDelayChangeRate: 0.2,
	}
}

// PresetOverride is a sparse PerformancePreset: nil fields inherit the
// SDK-wide preset. Features hand one in at registration.
type PresetOverride struct {
	MaxFileSize           *bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size,omitempty"`
	MaxObjectSize         *bytesize.ByteSize `mapstructure:"max_object_size" yaml:"max_object_size,omitempty"`
	MaxObjectsInFile      *int               `mapstructure:"max_objects_in_file" yaml:"max_objects_in_file,omitempty"`
	MaxFileAgeForWrite    *time.Duration     `mapstructure:"max_file_age_for_write" yaml:"max_file_age_for_write,omitempty"`
	MinFileAgeForRead     *time.Duration     `mapstructure:"min_file_age_for_read" yaml:"min_file_age_for_read,omitempty"`
	MaxFileAgeForRead     *time.Duration     `mapstructure:"max_file_age_for_read" yaml:"max_file_age_for_read,omitempty"`
	MaxDirectorySize      *bytesize.ByteSize `mapstructure:"max_directory_size" yaml:"max_directory_size,omitempty"`
	MinUploadDelay        *time.Duration     `mapstructure:"min_upload_delay" yaml:"min_upload_delay,omitempty"`
	MaxUploadDelay        *time.Duration     `mapstructure:"max_upload_delay" yaml:"max_upload_delay,omitempty"`
	InitialUploadDelay    *time.Duration     `mapstructure:"initial_upload_delay" yaml:"initial_upload_delay,omitempty"`
	UploadDelayChangeRate *float64           `mapstructure:"upload_delay_change_rate" yaml:"upload_delay_change_rate,omitempty"`
}

// Apply merges the override over p and returns the effective preset.
func (p PerformancePreset) Apply(o *PresetOverride) PerformancePreset {
	if o == nil {
		return p
	}
	if o.MaxFileSize != nil {
		p.MaxFileSize = *o.MaxFileSize
	}
	if o.MaxObjectSize != nil {
		p.MaxObjectSize = *o.MaxObjectSize
	}
	if o.MaxObjectsInFile != nil {
		p.MaxObjectsInFile = *o.MaxObjectsInFile
	}
	if o.MaxFileAgeForWrite != nil {
		p.MaxFileAgeForWrite = *o.MaxFileAgeForWrite
	}
	if o.MinFileAgeForRead != nil {
		p.MinFileAgeForRead = *o.MinFileAgeForRead
	}
	if o.MaxFileAgeForRead != nil {
		p.MaxFileAgeForRead = *o.MaxFileAgeForRead
	}
	if o.MaxDirectorySize != nil {
		p.MaxDirectorySize = *o.MaxDirectorySize
	}
	if o.MinUploadDelay != nil {
		p.MinUploadDelay = *o.MinUploadDelay
	}
	if o.MaxUploadDelay != nil {
		p.MaxUploadDelay = *o.MaxUploadDelay
	}
	if o.InitialUploadDelay != nil {
		p.InitialUploadDelay = *o.InitialUploadDelay
	}
	if o.UploadDelayChangeRate != nil {
		p.UploadDelayChangeRate = *o.UploadDelayChangeRate
	}
	return p
}

// StorageConfig projects the preset onto the storage limits.
func (p PerformancePreset) StorageConfig() storage.Config {
	return storage.Config{
		MaxFileSize:        p.MaxFileSize.Bytes(),
		MaxObjectSize:      p.MaxObjectSize.Bytes(),
		MaxObjectsInFile:   p.MaxObjectsInFile,
		MaxFileAgeForWrite: p.MaxFileAgeForWrite,
		MinFileAgeForRead:  p.MinFileAgeForRead,
		MaxFileAgeForRead:  p.MaxFileAgeForRead,
		MaxDirectorySize:   p.MaxDirectorySize.Bytes(),
	}
}

// UploadConfig projects the preset onto the upload pacing.
func (p PerformancePreset) UploadConfig(requestTimeout time.Duration, backgroundTasks bool) upload.Config {
	return upload.Config{
		MinDelay:               p.MinUploadDelay,
		MaxDelay:               p.MaxUploadDelay,
		InitialDelay:           p.InitialUploadDelay,
		DelayChangeRate:        p.UploadDelayChangeRate,
		RequestTimeout:         requestTimeout,
		BackgroundTasksEnabled: backgroundTasks,
	}
}
