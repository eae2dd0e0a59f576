package entry

import (
	"errors"
	"fmt"
)

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	return ReplayAfter(dir, 0, fn)
}

// ReplayAfter feeds fn the records with Seq > after and returns the last
// sequence seen. A torn frame at the end of the newest segment ends the
// journal; anywhere else it is an error.
func ReplayAfter(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	indexes, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for i, index := range indexes {
		_, err := walkSegment(segmentPath(dir, index), func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return fmt.Errorf("%w: seq %d after %d", ErrSeqNotIncreasing, rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			return fn(rec)
		})
		if err == nil {
			continue
		}
		newest := i == len(indexes)-1
		if newest && (errors.Is(err, errTorn) || errors.Is(err, ErrCorrupt)) {
			break
		}
		return lastSeq, fmt.Errorf("replay segment %d: %w", index, err)
	}
	return lastSeq, nil
}
