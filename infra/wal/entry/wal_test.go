package entry

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, dir string, segSize int64) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: segSize})
	require.NoError(t, err)
	return w
}

func appendN(t *testing.T, w *WAL, from, to uint64) {
	t.Helper()
	for seq := from; seq <= to; seq++ {
		require.NoError(t, w.Append(NewRecord(RecordCreate, seq, []byte{byte(seq)})))
	}
}

func collect(t *testing.T, dir string, after uint64) []uint64 {
	t.Helper()
	var seqs []uint64
	_, err := ReplayAfter(dir, after, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	return seqs
}

func TestAppendReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)

	records := []*Record{
		NewRecord(RecordCreate, 1, []byte("create")),
		NewRecord(RecordCancel, 2, nil),
		NewRecord(RecordClaim, 5, []byte("claim")),
	}
	for _, r := range records {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())

	var got []*Record
	last, err := Replay(dir, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
	require.Len(t, got, 3)
	for i := range records {
		require.Equal(t, records[i].Type, got[i].Type)
		require.Equal(t, records[i].Seq, got[i].Seq)
		require.Equal(t, records[i].Time, got[i].Time)
		require.Equal(t, len(records[i].Data), len(got[i].Data))
	}
	require.Equal(t, []byte("claim"), got[2].Data)
}

func TestAppendRejectsStaleSeq(t *testing.T) {
	w := openTest(t, t.TempDir(), 0)
	defer w.Close()

	appendN(t, w, 1, 3)
	require.ErrorIs(t, w.Append(NewRecord(RecordCreate, 3, nil)), ErrSeqNotIncreasing)
	require.ErrorIs(t, w.Append(NewRecord(RecordCreate, 2, nil)), ErrSeqNotIncreasing)
	require.Equal(t, uint64(3), w.LastSeq())
}

func TestCloseIsFinal(t *testing.T) {
	w := openTest(t, t.TempDir(), 0)
	appendN(t, w, 1, 1)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Append(NewRecord(RecordCreate, 2, nil)), ErrClosed)
	require.ErrorIs(t, w.TruncateBefore(1), ErrClosed)
}

func TestRotateBySize(t *testing.T) {
	dir := t.TempDir()
	// every frame fills a segment
	w := openTest(t, dir, 1)
	appendN(t, w, 1, 4)
	require.NoError(t, w.Close())

	indexes, err := listSegments(dir)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, indexes)
	require.Equal(t, []uint64{1, 2, 3, 4}, collect(t, dir, 0))
}

func TestRotateByDuration(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentDuration: time.Nanosecond})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	appendN(t, w, 1, 1)
	require.NoError(t, w.Close())

	indexes, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, indexes, 2)
}

func TestReopenContinues(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 60)
	appendN(t, w, 1, 5)
	require.NoError(t, w.Close())

	before, err := listSegments(dir)
	require.NoError(t, err)

	w = openTest(t, dir, 60)
	require.Equal(t, uint64(5), w.LastSeq())
	require.ErrorIs(t, w.Append(NewRecord(RecordCreate, 5, nil)), ErrSeqNotIncreasing)
	appendN(t, w, 6, 7)
	require.NoError(t, w.Close())

	after, err := listSegments(dir)
	require.NoError(t, err)
	require.Equal(t, before[0], after[0])
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, collect(t, dir, 0))
}

func TestReplayAfter(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 60)
	appendN(t, w, 1, 6)

	var seqs []uint64
	last, err := w.ReplayAfter(4, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(6), last)
	require.Equal(t, []uint64{5, 6}, seqs)
	require.NoError(t, w.Close())
}

func TestTornTailIsCut(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	st, err := os.Stat(path)
	require.NoError(t, err)
	// drop the last three bytes of the final frame
	require.NoError(t, os.Truncate(path, st.Size()-3))

	require.Equal(t, []uint64{1, 2}, collect(t, dir, 0))

	w = openTest(t, dir, 0)
	require.Equal(t, uint64(2), w.LastSeq())
	appendN(t, w, 3, 3)
	require.NoError(t, w.Close())
	require.Equal(t, []uint64{1, 2, 3}, collect(t, dir, 0))
}

func TestCorruptClosedSegmentFails(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[headerSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Replay(dir, func(*Record) error { return nil })
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1)
	defer w.Close()
	appendN(t, w, 1, 4)

	require.NoError(t, w.TruncateBefore(2))
	require.Equal(t, []uint64{3, 4}, collect(t, dir, 0))

	// the open segment is never removed
	require.NoError(t, w.TruncateBefore(100))
	indexes, err := listSegments(dir)
	require.NoError(t, err)
	require.Equal(t, []int{4}, indexes)

	appendN(t, w, 5, 5)
	require.Equal(t, []uint64{5}, collect(t, dir, 0))
}

func TestRecordTypeString(t *testing.T) {
	require.Equal(t, "create", RecordCreate.String())
	require.Equal(t, "cancel", RecordCancel.String())
	require.Equal(t, "claim", RecordClaim.String())
	require.Equal(t, "record(9)", RecordType(9).String())
}
