// Package monitor exposes the SDK's self-monitoring counters. Components
// accept a Monitor and tolerate nil, so hosts that don't care pay nothing.
package monitor

import "time"

// Monitor receives counts of the SDK-internal events worth watching in
// production: dropped writes, batch lifecycle, upload outcomes.
type Monitor interface {
	// WriteDropped counts an event that never reached disk.
	// Reasons: "consent", "oversize", "encryption", "io".
	WriteDropped(feature, reason string)

	// BatchCreated counts a new batch file.
	BatchCreated(feature string)

	// BatchDeleted counts a removed batch file.
	// Reasons: "uploaded", "unrecoverable", "corrupt", "obsolete",
	// "consent", "capacity", "cleared", "flushed".
	BatchDeleted(feature, reason string)

	// UploadAttempt counts one upload cycle outcome.
	// Status: "success", "client_error", "retryable".
	UploadAttempt(feature, status string)

	// UploadDelay records the delay the upload loop settled on.
	UploadDelay(feature string, delay time.Duration)
}

// Helpers below are nil-safe so call sites stay one-liners.

// WriteDropped records a dropped write on m if m is non-nil.
func WriteDropped(m Monitor, feature, reason string) {
	if m != nil {
		m.WriteDropped(feature, reason)
	}
}

// BatchCreated records a batch creation on m if m is non-nil.
func BatchCreated(m Monitor, feature string) {
	if m != nil {
		m.BatchCreated(feature)
	}
}

// BatchDeleted records a batch deletion on m if m is non-nil.
func BatchDeleted(m Monitor, feature, reason string) {
	if m != nil {
		m.BatchDeleted(feature, reason)
	}
}

// UploadAttempt records an upload outcome on m if m is non-nil.
func UploadAttempt(m Monitor, feature, status string) {
	if m != nil {
		m.UploadAttempt(feature, status)
	}
}

// UploadDelay records the current upload delay on m if m is non-nil.
func UploadDelay(m Monitor, feature string, delay time.Duration) {
	if m != nil {
		m.UploadDelay(feature, delay)
	}
}
