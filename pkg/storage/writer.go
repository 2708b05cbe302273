package storage

import (
	"os"
	"time"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/pkg/monitor"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// Writer appends events under the consent captured when the write scope
// was opened. Each Write is one record appended on the read/write lane;
// failures degrade silently (logged and counted, never surfaced).
type Writer struct {
	s        *Storage
	consent  sdkctx.TrackingConsent
	forceNew bool
}

// Writer returns an event writer bound to the given consent. forceNewBatch
// makes the writer's first append open a fresh batch file regardless of
// the current one's state.
func (s *Storage) Writer(consent sdkctx.TrackingConsent, forceNewBatch bool) *Writer {
	return &Writer{s: s, consent: consent, forceNew: forceNewBatch}
}

// Write schedules one event append. The event slice is captured as-is and
// must not be mutated by the caller afterwards.
func (w *Writer) Write(event []byte) {
	w.s.rw.Async(func() {
		forceNew := w.forceNew
		w.forceNew = false
		w.s.write(w.consent, forceNew, event)
	})
}

// write runs on the read/write lane.
func (s *Storage) write(consent sdkctx.TrackingConsent, forceNew bool, event []byte) {
	if consent == sdkctx.ConsentNotGranted {
		monitor.WriteDropped(s.mon, s.feature, "consent")
		return
	}

	if s.cfg.MaxObjectSize > 0 && uint64(len(event)) > s.cfg.MaxObjectSize {
		monitor.WriteDropped(s.mon, s.feature, "oversize")
		s.log.Warn("event dropped over object size cap",
			logger.KeySize, len(event), logger.KeyConsent, string(consent))
		return
	}

	payload := event
	if s.enc != nil {
		encrypted, err := s.enc.Encrypt(event)
		if err != nil {
			monitor.WriteDropped(s.mon, s.feature, "encryption")
			s.log.Error("event dropped on encryption failure", logger.KeyError, err)
			return
		}
		payload = encrypted
	}

	ob := s.currentBatch(consent, forceNew, uint64(len(payload)))
	if err := appendRecord(ob.path, payload); err != nil {
		monitor.WriteDropped(s.mon, s.feature, "io")
		s.log.Error("event dropped on write failure",
			logger.KeyBatch, ob.name, logger.KeyError, err)
		return
	}

	now := s.now()
	ob.lastWrite = now
	ob.size += recordHeaderSize + uint64(len(payload))
	ob.objects++
}

// currentBatch returns the open batch for the consent partition, rotating
// to a new file when forced or when any write-side limit is violated.
func (s *Storage) currentBatch(consent sdkctx.TrackingConsent, forceNew bool, payloadSize uint64) *openBatch {
	ob := s.open[consent]
	if ob != nil && !forceNew && !s.violatesWriteLimits(ob, payloadSize) {
		if _, err := os.Stat(ob.path); err == nil {
			return ob
		}
		// The file was purged underneath us; fall through to a new one.
	}

	dir := s.directoryFor(consent)
	now := s.now()
	name := fileNameForTime(now)
	for {
		if _, err := os.Stat(dir.file(name)); os.IsNotExist(err) {
			break
		}
		now = now.Add(time.Millisecond)
		name = fileNameForTime(now)
	}

	ob = &openBatch{
		name:      name,
		path:      dir.file(name),
		createdAt: now,
		lastWrite: now,
	}
	s.open[consent] = ob
	monitor.BatchCreated(s.mon, s.feature)
	s.log.Debug("batch opened",
		logger.KeyBatch, name, logger.KeyConsent, string(consent))

	s.enforceDirectorySize(consent)
	return ob
}

// violatesWriteLimits reports whether appending payloadSize more bytes to
// ob would break a rotation threshold.
func (s *Storage) violatesWriteLimits(ob *openBatch, payloadSize uint64) bool {
	if s.cfg.MaxFileSize > 0 && ob.size+recordHeaderSize+payloadSize > s.cfg.MaxFileSize {
		return true
	}
	if s.cfg.MaxObjectsInFile > 0 && ob.objects >= s.cfg.MaxObjectsInFile {
		return true
	}
	if s.cfg.MaxFileAgeForWrite > 0 && s.now().Sub(ob.createdAt) > s.cfg.MaxFileAgeForWrite {
		return true
	}
	return false
}
