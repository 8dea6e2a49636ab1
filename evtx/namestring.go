package evtx

// NameString is an interned, chunk-relative string table entry (§3).
// Identity is the chunk-relative offset, not a pointer: the table is a
// map[offset]*NameString per chunk.
type NameString struct {
	Offset     int // chunk-relative
	NextOffset uint32
	Hash       uint16
	Value      string
	StoredLen  uint16 // code units on disk, needed for inline tag-length math
}

// ParseNameString parses a NameString node at the given chunk-relative
// offset. Returns the entry and the number of bytes it occupies on disk.
func ParseNameString(cur *BinaryCursor, offset int) (*NameString, int, error) {
	c := cur.Clone(offset)
	next, err := c.U32LE()
	if err != nil {
		return nil, 0, wrapf(KindOutOfBounds, err, "read NameString.next at %#x", offset)
	}
	hash, err := c.U16LE()
	if err != nil {
		return nil, 0, wrapf(KindOutOfBounds, err, "read NameString.hash at %#x", offset)
	}
	length, err := c.U16LE()
	if err != nil {
		return nil, 0, wrapf(KindOutOfBounds, err, "read NameString.length at %#x", offset)
	}
	val, err := c.ReadUTF16Exact(int(length) * 2)
	if err != nil {
		return nil, 0, wrapf(KindOutOfBounds, err, "read NameString payload at %#x", offset)
	}
	// terminating NUL code unit
	if _, err := c.U16LE(); err != nil {
		return nil, 0, wrapf(KindOutOfBounds, err, "read NameString terminator at %#x", offset)
	}
	total := 8 + 2*int(length) + 2
	return &NameString{Offset: offset, NextOffset: next, Hash: hash, Value: val, StoredLen: length}, total, nil
}
