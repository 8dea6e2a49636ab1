package evtx

import "time"

const (
	recordMagic     = 0x00002a2a
	recordHeaderLen = 24 // magic(4) + size(4) + record_number(8) + timestamp(8)
	maxRecordSize   = 0x10000
)

// Record is one event record: header plus BXML payload plus trailing size
// duplicate (§3/§4.4).
type Record struct {
	chunk *ChunkHeader

	Offset       int // chunk-relative offset of this record's header
	Size         uint32
	RecordNumber uint64
	Timestamp    uint64 // raw FILETIME
	Size2        uint32

	dataStart int
	dataEnd   int
}

// ParseRecord reads a record header at chunkRelOff, an offset relative to
// the chunk's own cursor (i.e. chunk-relative). Returns the record and its
// total on-disk size in bytes (== record.Size, for caller advancement).
func ParseRecord(cur *BinaryCursor, chunkRelOff int, owner *ChunkHeader) (*Record, int, error) {
	magic, err := cur.U32LEAt(chunkRelOff)
	if err != nil {
		return nil, 0, wrapf(KindInvalidRecord, err, "read record magic at %#x", chunkRelOff)
	}
	if magic != recordMagic {
		return nil, 0, newErr(KindInvalidRecord, "bad record magic %#x at %#x", magic, chunkRelOff)
	}
	size, err := cur.U32LEAt(chunkRelOff + 4)
	if err != nil {
		return nil, 0, wrapf(KindInvalidRecord, err, "read record size at %#x", chunkRelOff)
	}
	if size == 0 {
		return &Record{chunk: owner, Offset: chunkRelOff, Size: 0}, 0, nil
	}
	if size > maxRecordSize {
		return nil, 0, newErr(KindInvalidRecord, "record size %#x exceeds max at %#x", size, chunkRelOff)
	}
	num, err := cur.U64LEAt(chunkRelOff + 8)
	if err != nil {
		return nil, 0, wrapf(KindInvalidRecord, err, "read record number at %#x", chunkRelOff)
	}
	ts, err := cur.U64LEAt(chunkRelOff + 16)
	if err != nil {
		return nil, 0, wrapf(KindInvalidRecord, err, "read record timestamp at %#x", chunkRelOff)
	}
	size2, err := cur.U32LEAt(chunkRelOff + int(size) - 4)
	if err != nil {
		return nil, 0, wrapf(KindInvalidRecord, err, "read trailing size at %#x", chunkRelOff)
	}

	r := &Record{
		chunk:        owner,
		Offset:       chunkRelOff,
		Size:         size,
		RecordNumber: num,
		Timestamp:    ts,
		Size2:        size2,
		dataStart:    chunkRelOff + recordHeaderLen,
		dataEnd:      chunkRelOff + int(size) - 4,
	}
	return r, int(size), nil
}

// Verify checks the trailing duplicate size per §4.4.
func (r *Record) Verify() error {
	if r.Size != r.Size2 {
		return newErr(KindInvalidRecord, "record %d: size %#x != trailing size %#x", r.RecordNumber, r.Size, r.Size2)
	}
	return nil
}

// TimestampAsDate converts the record's FILETIME to a UTC time.Time.
func (r *Record) TimestampAsDate() time.Time {
	return filetimeToTime(r.Timestamp)
}

// Root parses and returns the record's BXML root fragment, bounded to the
// bytes from record-data offset 0x18 up to (not including) the trailing
// 4-byte size copy, i.e. size-0x18-4 bytes (§4.4). It clones the
// chunk's cursor rather than sharing it directly: resolving a resident
// TemplateInstance mid-parse recurses into the same chunk's template cache,
// which would otherwise clobber this parse's own cursor position.
func (r *Record) Root() (*Element, []Substitution, error) {
	parser := newBXMLParser(r.chunk, r.chunk.cursor().Clone(0), false)
	return parser.parseRootFragment(r.dataStart, r.dataEnd)
}
