// Package storage is the per-feature batch-file manager. Events are
// appended to length-prefixed batch files under consent-partitioned
// directories; a reader hands finalized batches to the upload pipeline.
//
// Layout on disk, per feature:
//
//	<root>/<feature>/v2/
//	  granted/       batches awaiting upload
//	  pending/       batches written under consent=pending
//	  unauthorized/  transient; cleared at startup
//
// All file mutation is serialized through one read/write lane shared by
// every feature's storage, which is what makes the ordering guarantees of
// writers, readers and consent migration hold.
package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/internal/queue"
	"github.com/pulsekit/pulsekit/pkg/monitor"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// Config bounds batch files and partitions. Zero values disable the
// corresponding limit.
type Config struct {
	// MaxFileSize closes a batch once its size would exceed this.
	MaxFileSize uint64

	// MaxObjectSize drops single events larger than this.
	MaxObjectSize uint64

	// MaxObjectsInFile closes a batch after this many events.
	MaxObjectsInFile int

	// MaxFileAgeForWrite closes a batch this old on the next write.
	MaxFileAgeForWrite time.Duration

	// MinFileAgeForRead keeps a batch invisible to the reader until the
	// writer can no longer touch it.
	MinFileAgeForRead time.Duration

	// MaxFileAgeForRead deletes batches too old to be worth uploading.
	MaxFileAgeForRead time.Duration

	// MaxDirectorySize caps a partition; oldest batches are evicted first.
	MaxDirectorySize uint64
}

// Options carries the optional collaborators.
type Options struct {
	// Encryption encrypts payloads at rest. Nil stores plaintext.
	Encryption Encryption

	// Monitor receives self-monitoring counts. Nil disables them.
	Monitor monitor.Monitor

	// Now is the date provider. Nil uses time.Now.
	Now func() time.Time
}

// openBatch tracks the one writable batch file of a consent partition.
type openBatch struct {
	name      string
	path      string
	createdAt time.Time
	lastWrite time.Time
	size      uint64
	objects   int
}

// Storage manages the batch files of a single feature.
type Storage struct {
	feature string
	rw      *queue.SerialQueue
	cfg     Config
	enc     Encryption
	mon     monitor.Monitor
	now     func() time.Time
	log     *slog.Logger

	granted      *directory
	pending      *directory
	unauthorized *directory

	ignoreAge atomic.Bool

	// Owned by the read/write lane.
	open     map[sdkctx.TrackingConsent]*openBatch
	excluded map[string]struct{}
}

// New creates the storage for feature under root, materializing the three
// consent partitions. rw is the shared read/write lane.
func New(feature, root string, rw *queue.SerialQueue, cfg Config, opts Options) (*Storage, error) {
	base := filepath.Join(root, feature, "v2")

	granted, err := newDirectory(filepath.Join(base, "granted"))
	if err != nil {
		return nil, err
	}
	pending, err := newDirectory(filepath.Join(base, "pending"))
	if err != nil {
		return nil, err
	}
	unauthorized, err := newDirectory(filepath.Join(base, "unauthorized"))
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Storage{
		feature:      feature,
		rw:           rw,
		cfg:          cfg,
		enc:          opts.Encryption,
		mon:          opts.Monitor,
		now:          now,
		log:          logger.With(logger.KeyFeature, feature),
		granted:      granted,
		pending:      pending,
		unauthorized: unauthorized,
		open:         map[sdkctx.TrackingConsent]*openBatch{},
		excluded:     map[string]struct{}{},
	}, nil
}

// Feature returns the owning feature's name.
func (s *Storage) Feature() string { return s.feature }

// directoryFor maps a consent value to its partition.
func (s *Storage) directoryFor(consent sdkctx.TrackingConsent) *directory {
	switch consent {
	case sdkctx.ConsentGranted:
		return s.granted
	case sdkctx.ConsentPending:
		return s.pending
	default:
		return s.unauthorized
	}
}

// SetIgnoreFileAge toggles the flush-time reader mode that disregards
// MinFileAgeForRead and drains the open batch as well.
func (s *Storage) SetIgnoreFileAge(ignore bool) {
	s.ignoreAge.Store(ignore)
}

// MigrateUnauthorized relocates data written under consent=pending after a
// consent change: to granted it becomes eligible for upload, to notGranted
// it is deleted. The transient unauthorized partition is wiped either way.
// Runs asynchronously on the read/write lane.
func (s *Storage) MigrateUnauthorized(to sdkctx.TrackingConsent) {
	s.rw.Async(func() {
		delete(s.open, sdkctx.ConsentPending)

		switch to {
		case sdkctx.ConsentGranted:
			files, err := s.pending.files()
			if err != nil {
				s.log.Error("consent migration failed", logger.KeyError, err)
				return
			}
			for _, f := range files {
				target := s.granted.file(f.name)
				for at := f.createdAt; ; {
					if _, err := os.Stat(target); err != nil {
						break
					}
					// A granted batch was created in the same millisecond;
					// nudge the name forward to keep ordering stable.
					at = at.Add(time.Millisecond)
					target = s.granted.file(fileNameForTime(at))
				}
				if err := os.Rename(f.path, target); err != nil {
					s.log.Error("consent migration failed",
						logger.KeyBatch, f.name, logger.KeyError, err)
				}
			}
			s.log.Debug("pending batches promoted", logger.KeyObjects, len(files))
		case sdkctx.ConsentNotGranted:
			for range s.pending.wipe() {
				monitor.BatchDeleted(s.mon, s.feature, "consent")
			}
		}

		s.unauthorized.wipe()
	})
}

// ClearAll removes every batch file across all partitions. Idempotent.
// Runs asynchronously on the read/write lane.
func (s *Storage) ClearAll() {
	s.rw.Async(func() {
		s.open = map[sdkctx.TrackingConsent]*openBatch{}
		for _, d := range []*directory{s.granted, s.pending, s.unauthorized} {
			for range d.wipe() {
				monitor.BatchDeleted(s.mon, s.feature, "cleared")
			}
		}
	})
}

// ClearUnauthorized removes data left over from a previous run that was
// never authorized for upload: the pending partition and anything stale in
// the transient unauthorized partition. Invoked at feature registration.
func (s *Storage) ClearUnauthorized() {
	s.rw.Async(func() {
		delete(s.open, sdkctx.ConsentPending)
		for range s.pending.wipe() {
			monitor.BatchDeleted(s.mon, s.feature, "consent")
		}
		s.unauthorized.wipe()
	})
}

// Quiesce returns a barrier over the shared read/write lane.
func (s *Storage) Quiesce() queue.Barrier {
	return s.rw.Quiesce()
}

// enforceDirectorySize evicts oldest batches until the partition fits the
// configured cap. The open batch is spared.
func (s *Storage) enforceDirectorySize(consent sdkctx.TrackingConsent) {
	if s.cfg.MaxDirectorySize == 0 {
		return
	}
	dir := s.directoryFor(consent)
	files, err := dir.files()
	if err != nil {
		return
	}
	var total uint64
	for _, f := range files {
		total += f.size
	}
	ob := s.open[consent]
	for _, f := range files {
		if total <= s.cfg.MaxDirectorySize {
			return
		}
		if ob != nil && f.name == ob.name {
			continue
		}
		if err := os.Remove(f.path); err == nil {
			total -= f.size
			delete(s.excluded, f.path)
			monitor.BatchDeleted(s.mon, s.feature, "capacity")
			s.log.Warn("batch evicted over directory cap",
				logger.KeyBatch, f.name, logger.KeySize, f.size)
		}
	}
}
