package entry

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const DefaultSegmentSize int64 = 64 << 20

// ErrSeqNotIncreasing is returned when a record does not advance the
// journal sequence.
var ErrSeqNotIncreasing = errors.New("journal sequence not increasing")

var ErrClosed = errors.New("journal closed")

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// Sync fsyncs the segment after every append.
	Sync bool
}

// WAL is an append-only journal of binary frames split into numbered
// segments. Reopening continues in the newest segment after cutting off
// any torn tail.
type WAL struct {
	mtx sync.Mutex

	dir         string
	segSize     int64
	segDuration time.Duration
	sync        bool

	current    *segment
	lastRotate time.Time
	lastSeq    uint64
}

func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	indexes, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:         cfg.Dir,
		segSize:     cfg.SegmentSize,
		segDuration: cfg.SegmentDuration,
		sync:        cfg.Sync,
		lastRotate:  time.Now(),
	}

	index := 0
	if n := len(indexes); n > 0 {
		index = indexes[n-1]
		if err := w.recover(indexes); err != nil {
			return nil, err
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	w.current = seg
	return w, nil
}

// recover finds the last sequence and truncates the newest segment to its
// intact prefix.
func (w *WAL) recover(indexes []int) error {
	newest := segmentPath(w.dir, indexes[len(indexes)-1])
	last, valid, err := maxSeqInSegment(newest)
	if err != nil {
		return err
	}
	st, err := os.Stat(newest)
	if err != nil {
		return err
	}
	if st.Size() > valid {
		if err := os.Truncate(newest, valid); err != nil {
			return fmt.Errorf("truncate torn tail of %s: %w", newest, err)
		}
	}

	for i := len(indexes) - 2; last == 0 && i >= 0; i-- {
		if last, _, err = maxSeqInSegment(segmentPath(w.dir, indexes[i])); err != nil {
			return err
		}
	}
	w.lastSeq = last
	return nil
}

// Append writes r to the current segment, rotating afterwards if the
// segment is full or old enough.
func (w *WAL) Append(r *Record) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.current == nil {
		return ErrClosed
	}
	if r.Seq <= w.lastSeq {
		return fmt.Errorf("%w: seq %d after %d", ErrSeqNotIncreasing, r.Seq, w.lastSeq)
	}

	if err := w.current.append(encodeRecord(r)); err != nil {
		return err
	}
	if w.sync {
		if err := w.current.sync(); err != nil {
			return err
		}
	}
	w.lastSeq = r.Seq

	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.segSize {
		return true
	}
	return w.segDuration > 0 && time.Since(w.lastRotate) >= w.segDuration
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// LastSeq returns the sequence of the last record written.
func (w *WAL) LastSeq() uint64 {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.lastSeq
}

func (w *WAL) Dir() string { return w.dir }

// ReplayAfter replays the journal written so far.
func (w *WAL) ReplayAfter(after uint64, fn ReplayHandler) (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return ReplayAfter(w.dir, after, fn)
}

// TruncateBefore removes closed segments holding nothing past seq.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.current == nil {
		return ErrClosed
	}
	indexes, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	for _, index := range indexes {
		if index >= w.current.index {
			break
		}
		path := segmentPath(w.dir, index)
		maxSeq, _, err := maxSeqInSegment(path)
		if err != nil {
			return err
		}
		if maxSeq > seq {
			// later segments only hold higher sequences
			break
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func (w *WAL) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.current == nil {
		return nil
	}
	cur := w.current
	w.current = nil
	if err := cur.sync(); err != nil {
		cur.close()
		return err
	}
	return cur.close()
}
