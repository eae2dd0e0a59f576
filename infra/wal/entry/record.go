package entry

import (
	"fmt"
	"time"
)

// RecordType identifies the command a journal record carries.
type RecordType uint8

const (
	RecordCreate RecordType = iota + 1
	RecordCancel
	RecordClaim
)

func (t RecordType) String() string {
	switch t {
	case RecordCreate:
		return "create"
	case RecordCancel:
		return "cancel"
	case RecordClaim:
		return "claim"
	default:
		return fmt.Sprintf("record(%d)", uint8(t))
	}
}

// Record is an immutable journal entry. Seq is assigned by the writer and
// strictly increases across the journal.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
