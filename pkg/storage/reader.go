package storage

import (
	"os"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/pkg/monitor"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// Batch is one finalized batch handed to the upload pipeline: the decoded
// (and decrypted) event payloads in write order, identified by the file
// name it came from.
type Batch struct {
	ID     string
	Events [][]byte
}

// Reader yields granted batches one at a time, oldest first. A batch stays
// invisible to subsequent reads until the caller settles it with Delete or
// Keep.
type Reader struct {
	s *Storage
}

// Reader returns the feature's batch reader.
func (s *Storage) Reader() *Reader {
	return &Reader{s: s}
}

// ReadNext returns the oldest eligible batch in the granted partition, or
// nil when none qualifies. Eligible means older than MinFileAgeForRead,
// unless the storage is in ignore-age mode, which also closes the open
// batch so a synchronous flush can drain everything.
//
// Batches too old to upload are deleted unread; undecodable batches are
// deleted and skipped.
func (r *Reader) ReadNext() *Batch {
	var out *Batch
	r.s.rw.Sync(func() {
		out = r.s.readNext()
	})
	return out
}

// Delete settles a batch by removing its file. reason feeds the
// self-monitoring counters ("uploaded", "unrecoverable", "flushed", ...).
func (r *Reader) Delete(b *Batch, reason string) {
	r.s.rw.Sync(func() {
		path := r.s.granted.file(b.ID)
		delete(r.s.excluded, path)
		if err := os.Remove(path); err == nil {
			monitor.BatchDeleted(r.s.mon, r.s.feature, reason)
			r.s.log.Debug("batch deleted",
				logger.KeyBatch, b.ID, logger.KeyReason, reason)
		}
	})
}

// Keep settles a batch by leaving it on disk for a later retry.
func (r *Reader) Keep(b *Batch) {
	r.s.rw.Sync(func() {
		delete(r.s.excluded, r.s.granted.file(b.ID))
	})
}

// readNext runs on the read/write lane.
func (s *Storage) readNext() *Batch {
	ignoreAge := s.ignoreAge.Load()
	if ignoreAge {
		// Close the open granted batch so it becomes readable.
		delete(s.open, sdkctx.ConsentGranted)
	}

	files, err := s.granted.files()
	if err != nil {
		s.log.Error("batch listing failed", logger.KeyError, err)
		return nil
	}

	now := s.now()
	for _, f := range files {
		if _, held := s.excluded[f.path]; held {
			continue
		}
		if s.cfg.MaxFileAgeForRead > 0 && f.age(now) > s.cfg.MaxFileAgeForRead {
			if os.Remove(f.path) == nil {
				monitor.BatchDeleted(s.mon, s.feature, "obsolete")
				s.log.Debug("batch expired unread", logger.KeyBatch, f.name)
			}
			if ob := s.open[sdkctx.ConsentGranted]; ob != nil && ob.name == f.name {
				delete(s.open, sdkctx.ConsentGranted)
			}
			continue
		}
		if !ignoreAge && f.age(now) < s.cfg.MinFileAgeForRead {
			// Files are oldest-first; everything after is younger still.
			return nil
		}

		events, ok := s.decodeBatch(f)
		if !ok {
			continue
		}
		// Handing out the open batch closes it; the next write rotates.
		if ob := s.open[sdkctx.ConsentGranted]; ob != nil && ob.name == f.name {
			delete(s.open, sdkctx.ConsentGranted)
		}
		s.excluded[f.path] = struct{}{}
		return &Batch{ID: f.name, Events: events}
	}
	return nil
}

// decodeBatch reads and decrypts one file. A batch that yields no events,
// or fails to decrypt, is deleted as corrupt.
func (s *Storage) decodeBatch(f batchFileInfo) ([][]byte, bool) {
	records, err := readRecords(f.path)
	if err == nil && len(records) == 0 {
		err = errEmptyBatch
	}
	if err == nil && s.enc != nil {
		for i, rec := range records {
			var plain []byte
			if plain, err = s.enc.Decrypt(rec); err != nil {
				break
			}
			records[i] = plain
		}
	}
	if err != nil {
		if os.Remove(f.path) == nil {
			monitor.BatchDeleted(s.mon, s.feature, "corrupt")
		}
		s.log.Warn("corrupt batch deleted",
			logger.KeyBatch, f.name, logger.KeyError, err)
		return nil, false
	}
	return records, true
}
