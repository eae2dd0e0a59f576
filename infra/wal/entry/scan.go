package entry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const (
	headerSize = 21
	crcSize    = 4
	// MaxPayload bounds a single record so a corrupt length cannot make
	// the reader allocate unbounded memory.
	MaxPayload = 16 << 20
)

var (
	// ErrCorrupt is returned when a frame fails its checksum or carries an
	// impossible length.
	ErrCorrupt = errors.New("journal record corrupt")
	// errTorn marks a frame cut short by a crash mid-append.
	errTorn = errors.New("journal record torn")
)

func encodeRecord(r *Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+payloadLen+crcSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errTorn
		}
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])
	if l > MaxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, l)
	}

	data := make([]byte, l+crcSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errTorn
		}
		return nil, err
	}

	payload := data[:l]
	crc := binary.BigEndian.Uint32(data[l:])
	if !CRC32Valid(append(header, payload...), crc) {
		return nil, fmt.Errorf("%w: crc mismatch at seq %d", ErrCorrupt, seq)
	}

	return &Record{
		Type: t,
		Seq:  seq,
		Time: int64(ts),
		Data: payload,
	}, nil
}

// walkSegment reads records until a clean end or the first bad frame.
// valid is the length of the intact prefix. A torn or corrupt frame stops
// the walk with errTorn or ErrCorrupt; an error from fn is returned as is.
func walkSegment(path string, fn func(*Record) error) (valid int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			return valid, nil
		}
		if err != nil {
			return valid, err
		}
		if err := fn(rec); err != nil {
			return valid, err
		}
		valid += int64(headerSize + len(rec.Data) + crcSize)
	}
}

// maxSeqInSegment returns the highest sequence in the intact prefix of a
// segment and the prefix length.
func maxSeqInSegment(path string) (max uint64, valid int64, err error) {
	valid, err = walkSegment(path, func(r *Record) error {
		if r.Seq > max {
			max = r.Seq
		}
		return nil
	})
	if errors.Is(err, errTorn) || errors.Is(err, ErrCorrupt) {
		err = nil
	}
	return max, valid, err
}
