package evtx

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"unicode/utf16"
)

// BinaryCursor is a position-tracked, bounds-checked view over an immutable
// byte slab. It generalizes the free readByte/readWord/readDword/readQword
// helpers the teacher kept in binio.go into methods that also support
// random access and cheap cloning, which §4.3's "side-effect-free
// interning" contract requires: chunk table lookups must not disturb the
// cursor driving the active BXML parse.
type BinaryCursor struct {
	slab []byte
	pos  int
}

// NewCursor wraps slab starting at position 0. The slab is never copied;
// callers must not mutate it while any cursor is alive.
func NewCursor(slab []byte) *BinaryCursor {
	return &BinaryCursor{slab: slab}
}

// Clone returns an independent cursor rebased at off: offset 0 of the
// returned cursor is offset off of c. Used by ChunkHeader whenever it needs
// to resolve a string or template offset without moving the cursor driving
// the active parse, and by FileHeader to hand each ChunkHeader a
// chunk-relative view of the file slab.
func (c *BinaryCursor) Clone(off int) *BinaryCursor {
	if off < 0 || off > len(c.slab) {
		return &BinaryCursor{slab: nil, pos: 0}
	}
	return &BinaryCursor{slab: c.slab[off:], pos: 0}
}

// Len returns the slab length.
func (c *BinaryCursor) Len() int { return len(c.slab) }

// Tell returns the current position.
func (c *BinaryCursor) Tell() int { return c.pos }

// Seek sets the current position. It does not itself bounds-check against
// the slab length; the next read will.
func (c *BinaryCursor) Seek(off int) { c.pos = off }

// Bytes returns the raw slab (read-only use expected).
func (c *BinaryCursor) Bytes() []byte { return c.slab }

func (c *BinaryCursor) checkBounds(off, n int) error {
	if off < 0 || n < 0 || off+n > len(c.slab) {
		return wrapf(KindOutOfBounds, ErrOutOfBounds, "read %d bytes at %#x (slab len %#x)", n, off, len(c.slab))
	}
	return nil
}

// Peek returns n bytes at off without advancing the cursor.
func (c *BinaryCursor) Peek(off, n int) ([]byte, error) {
	if err := c.checkBounds(off, n); err != nil {
		return nil, err
	}
	return c.slab[off : off+n], nil
}

// --- random access primitives ---

func (c *BinaryCursor) U8At(off int) (uint8, error) {
	if err := c.checkBounds(off, 1); err != nil {
		return 0, err
	}
	return c.slab[off], nil
}

func (c *BinaryCursor) I8At(off int) (int8, error) {
	v, err := c.U8At(off)
	return int8(v), err
}

func (c *BinaryCursor) U16LEAt(off int) (uint16, error) {
	if err := c.checkBounds(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(c.slab[off:]), nil
}

func (c *BinaryCursor) I16LEAt(off int) (int16, error) {
	v, err := c.U16LEAt(off)
	return int16(v), err
}

func (c *BinaryCursor) U32LEAt(off int) (uint32, error) {
	if err := c.checkBounds(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.slab[off:]), nil
}

func (c *BinaryCursor) U32BEAt(off int) (uint32, error) {
	if err := c.checkBounds(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.slab[off:]), nil
}

func (c *BinaryCursor) I32LEAt(off int) (int32, error) {
	v, err := c.U32LEAt(off)
	return int32(v), err
}

func (c *BinaryCursor) U64LEAt(off int) (uint64, error) {
	if err := c.checkBounds(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(c.slab[off:]), nil
}

func (c *BinaryCursor) I64LEAt(off int) (int64, error) {
	v, err := c.U64LEAt(off)
	return int64(v), err
}

func (c *BinaryCursor) F32LEAt(off int) (float32, error) {
	v, err := c.U32LEAt(off)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *BinaryCursor) F64LEAt(off int) (float64, error) {
	v, err := c.U64LEAt(off)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// --- sequential primitives (advance pos) ---

func (c *BinaryCursor) U8() (uint8, error) {
	v, err := c.U8At(c.pos)
	if err == nil {
		c.pos++
	}
	return v, err
}

func (c *BinaryCursor) U16LE() (uint16, error) {
	v, err := c.U16LEAt(c.pos)
	if err == nil {
		c.pos += 2
	}
	return v, err
}

func (c *BinaryCursor) U32LE() (uint32, error) {
	v, err := c.U32LEAt(c.pos)
	if err == nil {
		c.pos += 4
	}
	return v, err
}

func (c *BinaryCursor) U64LE() (uint64, error) {
	v, err := c.U64LEAt(c.pos)
	if err == nil {
		c.pos += 8
	}
	return v, err
}

func (c *BinaryCursor) I32LE() (int32, error) {
	v, err := c.I32LEAt(c.pos)
	if err == nil {
		c.pos += 4
	}
	return v, err
}

func (c *BinaryCursor) I64LE() (int64, error) {
	v, err := c.I64LEAt(c.pos)
	if err == nil {
		c.pos += 8
	}
	return v, err
}

// ReadBytes consumes and returns n raw bytes starting at pos.
func (c *BinaryCursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.Peek(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// ReadWStringPrefixed reads a u16 length (in UTF-16 code units), then that
// many code units as UTF-16LE, with no NUL terminator consumed.
func (c *BinaryCursor) ReadWStringPrefixed() (string, error) {
	n, err := c.U16LE()
	if err != nil {
		return "", err
	}
	return c.ReadUTF16Exact(int(n) * 2)
}

// ReadUTF16Exact decodes exactly nBytes as UTF-16LE, stripping any trailing
// NUL code units.
func (c *BinaryCursor) ReadUTF16Exact(nBytes int) (string, error) {
	if nBytes <= 0 {
		if nBytes < 0 {
			return "", newErr(KindOutOfBounds, "negative utf16 length %d", nBytes)
		}
		return "", nil
	}
	raw, err := c.ReadBytes(nBytes)
	if err != nil {
		return "", err
	}
	return decodeUTF16LE(raw), nil
}

// decodeUTF16LE decodes raw little-endian UTF-16 bytes, stripping trailing
// NUL code units before conversion.
func decodeUTF16LE(raw []byte) string {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// crc32IEEE computes CRC-32/IEEE over slice, matching the spec's "standard
// IEEE polynomial" requirement.
func crc32IEEE(slice []byte) uint32 {
	return crc32.ChecksumIEEE(slice)
}
