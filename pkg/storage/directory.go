package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// directory is one consent partition on disk. All methods run on the
// shared read/write lane; the type itself is not synchronized.
type directory struct {
	path string
}

// batchFileInfo describes one batch file found in a partition.
type batchFileInfo struct {
	name      string
	path      string
	size      uint64
	createdAt time.Time
}

func (f batchFileInfo) age(now time.Time) time.Duration {
	return now.Sub(f.createdAt)
}

func newDirectory(path string) (*directory, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", path, err)
	}
	return &directory{path: path}, nil
}

// files lists batch files oldest-first. Entries whose names do not encode
// a creation time are ignored (they are not ours).
func (d *directory) files() ([]batchFileInfo, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w", d.path, err)
	}

	infos := make([]batchFileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := timeFromFileName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, batchFileInfo{
			name:      e.Name(),
			path:      filepath.Join(d.path, e.Name()),
			size:      uint64(fi.Size()),
			createdAt: created,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].createdAt.Before(infos[j].createdAt)
	})
	return infos, nil
}

// totalSize sums the sizes of all batch files in the partition.
func (d *directory) totalSize() uint64 {
	infos, err := d.files()
	if err != nil {
		return 0
	}
	var total uint64
	for _, f := range infos {
		total += f.size
	}
	return total
}

// wipe deletes every batch file in the partition. It returns the names
// removed so callers can count them.
func (d *directory) wipe() []string {
	infos, err := d.files()
	if err != nil {
		return nil
	}
	removed := make([]string, 0, len(infos))
	for _, f := range infos {
		if os.Remove(f.path) == nil {
			removed = append(removed, f.name)
		}
	}
	return removed
}

// file returns the full path for a batch file name in this partition.
func (d *directory) file(name string) string {
	return filepath.Join(d.path, name)
}
