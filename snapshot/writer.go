package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
)

type Writer struct {
	Dir string
}

// Path returns where the snapshot of market is kept.
func (w *Writer) Path(market string) string {
	return filepath.Join(w.Dir, market+".snap")
}

// Write replaces the market's snapshot. The new file is written and synced
// under a temporary name first, so a crash leaves the old snapshot intact.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(w.Dir, s.Market+".snap.tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, w.Path(s.Market))
}
