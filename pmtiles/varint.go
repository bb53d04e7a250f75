package pmtiles

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DecodeVarint decodes an unsigned LEB128 varint from the start of b and
// returns the value along with the number of bytes consumed.
func DecodeVarint(b []byte) (uint64, int, error) {
	value, n := binary.Uvarint(b)
	if n == 0 {
		return 0, 0, fmt.Errorf("reading varint: %w", io.ErrUnexpectedEOF)
	}
	if n < 0 {
		return 0, -n, ErrVarintOverflow
	}
	return value, n, nil
}

// varintReader walks a decompressed directory one varint at a time.
type varintReader struct {
	buf []byte
	pos int
}

func (r *varintReader) next() (uint64, error) {
	value, n, err := DecodeVarint(r.buf[r.pos:])
	if err != nil {
		return 0, fmt.Errorf("at byte %d: %w", r.pos, err)
	}
	r.pos += n
	return value, nil
}

func (r *varintReader) remaining() int {
	return len(r.buf) - r.pos
}
