// Package cursor implements the 128-bit log position used by the sync pull API.
//
// On the wire a cursor is the hex encoding of its big-endian bytes. The client
// always sends the full 16-byte form; the server may answer with a trimmed form
// that omits leading zero bytes, so decoding zero-extends short inputs.
package cursor

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// Size is the width of a cursor in bytes.
const Size = 16

// ErrMalformed is returned when a wire cursor is not valid hex or is wider than Size bytes.
var ErrMalformed = errors.New("malformed cursor")

// Cursor is an unsigned 128-bit integer stored big-endian.
type Cursor [Size]byte

// Zero is the first position in the log.
var Zero Cursor

// Max returns the largest representable cursor.
func Max() Cursor {
	var c Cursor
	for i := range c {
		c[i] = 0xff
	}
	return c
}

// FromUint64 returns the cursor holding n.
func FromUint64(n uint64) Cursor {
	return FromParts(0, n)
}

// FromParts builds a cursor from its high and low 64-bit halves.
func FromParts(hi, lo uint64) Cursor {
	var c Cursor
	binary.BigEndian.PutUint64(c[:8], hi)
	binary.BigEndian.PutUint64(c[8:], lo)
	return c
}

// Parts returns the high and low 64-bit halves of c.
func (c Cursor) Parts() (hi, lo uint64) {
	return binary.BigEndian.Uint64(c[:8]), binary.BigEndian.Uint64(c[8:])
}

// Encode returns the fixed-width wire form: 32 lowercase hex characters.
func Encode(c Cursor) string {
	return hex.EncodeToString(c[:])
}

// Decode parses a wire cursor. Inputs shorter than 32 hex characters are treated
// as big-endian values with their leading zero bytes trimmed. The empty string
// decodes to Zero.
func Decode(s string) (Cursor, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	if len(raw) > Size {
		return Zero, fmt.Errorf("%w: %q is %d bytes, max %d", ErrMalformed, s, len(raw), Size)
	}
	var c Cursor
	copy(c[Size-len(raw):], raw)
	return c, nil
}

// MustDecode is like Decode but panics on malformed input. Intended for tests and constants.
func MustDecode(s string) Cursor {
	c, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Next returns c+1. ok is false when c is Max and the increment would wrap.
func (c Cursor) Next() (next Cursor, ok bool) {
	next = c
	for i := Size - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next, true
		}
	}
	return c, false
}

// Compare returns -1, 0 or +1 depending on whether c is less than, equal to, or greater than o.
func (c Cursor) Compare(o Cursor) int {
	return bytes.Compare(c[:], o[:])
}

// IsZero reports whether c is the first log position.
func (c Cursor) IsZero() bool {
	return c == Zero
}

// BigInt returns c as an arbitrary-precision integer.
func (c Cursor) BigInt() *big.Int {
	return new(big.Int).SetBytes(c[:])
}

// String returns the fixed-width wire form.
func (c Cursor) String() string {
	return Encode(c)
}

// MarshalText implements encoding.TextMarshaler using the fixed-width wire form.
func (c Cursor) MarshalText() ([]byte, error) {
	return []byte(Encode(c)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using the lenient decoder.
func (c *Cursor) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}
