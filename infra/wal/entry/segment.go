package entry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	index  int
	file   *os.File
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{index: index, file: f, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	s.offset += int64(n)
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns the segment indexes in dir, ascending.
func listSegments(dir string) ([]int, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(files))
	for _, path := range files {
		var index int
		if _, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &index); err != nil {
			continue
		}
		out = append(out, index)
	}
	sort.Ints(out)
	return out, nil
}
