package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Entry --------------------

// ErrNotFound is returned for sequences with no outbox entry.
var ErrNotFound = errors.New("outbox entry not found")

// Entry is one outbound event and its delivery state.
type Entry struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const entryHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeader+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[entryHeader:], e.Payload)
	return buf
}

func decodeEntry(seq uint64, b []byte) (Entry, error) {
	if len(b) < entryHeader {
		return Entry{}, fmt.Errorf("outbox entry %d: invalid length %d", seq, len(b))
	}
	payload := make([]byte, len(b)-entryHeader)
	copy(payload, b[entryHeader:])
	return Entry{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- Outbox --------------------

// Outbox is a durable queue of events waiting to leave the process. Entries
// are numbered in append order and move NEW -> SENT -> ACKED, or to FAILED
// and back through SENT on retry.
type Outbox struct {
	db *pebble.DB

	mtx  sync.Mutex
	last uint64
	now  func() time.Time
}

func Open(dir string, opts *pebble.Options) (*Outbox, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	o := &Outbox{db: db, now: time.Now}
	if err := o.loadLast(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// loadLast reads the sequence counter, which outlives truncated entries.
func (o *Outbox) loadLast() error {
	last, err := o.readUint64(lastKey)
	o.last = last
	return err
}

func (o *Outbox) readUint64(key []byte) (uint64, error) {
	val, closer, err := o.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, fmt.Errorf("outbox key %s: invalid length %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// -------------------- API --------------------

// Append stores payloads as NEW entries in one durable batch and returns
// their sequences.
func (o *Outbox) Append(payloads ...[]byte) ([]uint64, error) {
	return o.append(nil, payloads)
}

// AppendFor is Append for the events of step seq of a stream. The stream's
// watermark advances to seq in the same batch, so a step replayed after a
// crash can tell whether its events were already stored.
func (o *Outbox) AppendFor(stream string, seq uint64, payloads ...[]byte) ([]uint64, error) {
	var mark [8]byte
	binary.BigEndian.PutUint64(mark[:], seq)
	return o.append(func(b *pebble.Batch) error {
		return b.Set(watermarkKey(stream), mark[:], nil)
	}, payloads)
}

// Watermark returns the last step seq appended for stream.
func (o *Outbox) Watermark(stream string) (uint64, error) {
	return o.readUint64(watermarkKey(stream))
}

func (o *Outbox) append(extra func(*pebble.Batch) error, payloads [][]byte) ([]uint64, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	batch := o.db.NewBatch()
	defer batch.Close()

	seqs := make([]uint64, 0, len(payloads))
	next := o.last
	for _, p := range payloads {
		next++
		if err := batch.Set(keyFor(next), encodeEntry(Entry{State: StateNew, Payload: p}), nil); err != nil {
			return nil, err
		}
		seqs = append(seqs, next)
	}
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], next)
	if err := batch.Set(lastKey, counter[:], nil); err != nil {
		return nil, err
	}
	if extra != nil {
		if err := extra(batch); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	o.last = next
	return seqs, nil
}

// LastSeq returns the sequence of the newest entry.
func (o *Outbox) LastSeq() uint64 {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.last
}

// Get returns the entry stored under seq.
func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	return decodeEntry(seq, val)
}

func (o *Outbox) MarkSent(seq uint64) error {
	return o.update(seq, func(e *Entry) {
		e.State = StateSent
		e.LastAttempt = o.now().UnixNano()
	})
}

func (o *Outbox) MarkAcked(seq uint64) error {
	return o.update(seq, func(e *Entry) {
		e.State = StateAcked
	})
}

// MarkFailed records a failed delivery attempt and returns the attempt
// count so far.
func (o *Outbox) MarkFailed(seq uint64) (uint32, error) {
	var retries uint32
	err := o.update(seq, func(e *Entry) {
		e.State = StateFailed
		e.Retries++
		retries = e.Retries
	})
	return retries, err
}

// Requeue moves entries left SENT by an interrupted delivery back to NEW.
// Delivery is at least once.
func (o *Outbox) Requeue() (int, error) {
	var seqs []uint64
	err := o.ScanByState(StateSent, 0, func(e Entry) error {
		seqs = append(seqs, e.Seq)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, seq := range seqs {
		if err := o.update(seq, func(e *Entry) { e.State = StateNew }); err != nil {
			return 0, err
		}
	}
	return len(seqs), nil
}

func (o *Outbox) update(seq uint64, fn func(*Entry)) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	fn(&e)
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState visits entries in the given state in sequence order. limit
// <= 0 visits all of them.
func (o *Outbox) ScanByState(state State, limit int, fn func(Entry) error) error {
	iter, err := o.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || State(val[0]) != state {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(seq, val)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		if n++; limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Counts returns the number of entries per state.
func (o *Outbox) Counts() (map[State]int, error) {
	iter, err := o.newIter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[State]int)
	for iter.First(); iter.Valid(); iter.Next() {
		if val := iter.Value(); len(val) > 0 {
			out[State(val[0])]++
		}
	}
	return out, iter.Error()
}

// TruncateAckedUpTo deletes ACKED entries with sequence <= seq and returns
// how many were removed. Undelivered entries are kept whatever their
// sequence.
func (o *Outbox) TruncateAckedUpTo(seq uint64) (int, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(0),
		UpperBound: keyFor(seq + 1),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	defer batch.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if val := iter.Value(); len(val) == 0 || State(val[0]) != StateAcked {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, batch.Commit(pebble.Sync)
}

// -------------------- Helpers --------------------

const keyPrefix = "event/"

var lastKey = []byte("meta/last")

func watermarkKey(stream string) []byte {
	return []byte("meta/watermark/" + stream)
}

func (o *Outbox) newIter() (*pebble.Iterator, error) {
	return o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("event0"),
	})
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	s := string(b)
	if len(s) <= len(keyPrefix) || s[:len(keyPrefix)] != keyPrefix {
		return 0, fmt.Errorf("outbox key %q", s)
	}
	return strconv.ParseUint(s[len(keyPrefix):], 10, 64)
}
