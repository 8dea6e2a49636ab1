package evtx

const (
	chunkHeaderMagic   = "ElfChnk\x00"
	stringTableOffset  = 0x80
	stringBucketCount  = 64
	templateTableOff   = 0x180
	templateBucketCnt  = 64
	chunkDataStart     = 0x200
	chunkHeaderCRCGap1 = 0x78 // [0,0x78)
	chunkHeaderCRCOff  = 0x7C // header_crc field, outside both covered regions
)

// ChunkHeader is the header of one fixed 64 KiB chunk (§3/§4.3). It owns
// the chunk's string and template interning tables and its record stream.
type ChunkHeader struct {
	cur    *BinaryCursor // positioned at the chunk's base offset
	base   int           // absolute file offset of this chunk
	Offset int           // alias of base, for callers that only have a ChunkHeader

	Magic                string
	FileFirstRecordNumber uint64
	FileLastRecordNumber  uint64
	LogFirstRecordNumber  uint64
	LogLastRecordNumber   uint64
	HeaderSize            uint32
	LastRecordOffset      uint32
	NextRecordOffset      uint32
	DataCRC               uint32
	HeaderCRC             uint32

	strings   map[int]*NameString
	stringsOK bool

	templates map[int]*TemplateDefinition
}

// ParseChunkHeader reads the fixed-offset chunk header fields. cur must be
// a cursor cloned/positioned at the chunk's base offset (offset 0 of cur
// corresponds to the chunk's first byte).
func ParseChunkHeader(cur *BinaryCursor, base int) (*ChunkHeader, error) {
	ch := &ChunkHeader{
		cur:       cur,
		base:      base,
		Offset:    base,
		strings:   make(map[int]*NameString),
		templates: make(map[int]*TemplateDefinition),
	}

	magicBytes, err := cur.Peek(0, 8)
	if err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read chunk magic at %#x", base)
	}
	ch.Magic = string(magicBytes)
	if ch.Magic != chunkHeaderMagic {
		return nil, newErr(KindInvalidChunk, "bad chunk magic %q at %#x", ch.Magic, base)
	}

	fields := []struct {
		off int
		dst *uint64
	}{
		{8, &ch.FileFirstRecordNumber},
		{16, &ch.FileLastRecordNumber},
		{24, &ch.LogFirstRecordNumber},
		{32, &ch.LogLastRecordNumber},
	}
	for _, f := range fields {
		v, err := cur.U64LEAt(f.off)
		if err != nil {
			return nil, wrapf(KindInvalidChunk, err, "read chunk field at %#x", base+f.off)
		}
		*f.dst = v
	}
	if ch.HeaderSize, err = cur.U32LEAt(40); err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read header_size")
	}
	if ch.LastRecordOffset, err = cur.U32LEAt(44); err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read last_record_offset")
	}
	if ch.NextRecordOffset, err = cur.U32LEAt(48); err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read next_record_offset")
	}
	if ch.DataCRC, err = cur.U32LEAt(52); err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read data_crc")
	}
	if ch.HeaderCRC, err = cur.U32LEAt(chunkHeaderCRCOff); err != nil {
		return nil, wrapf(KindInvalidChunk, err, "read header_crc")
	}

	if err := ch.Verify(); err != nil {
		return nil, err
	}
	return ch, nil
}

// cursor returns the chunk-base cursor, used internally by template parsing.
func (ch *ChunkHeader) cursor() *BinaryCursor { return ch.cur }

// Verify checks both chunk CRCs per §4.3.
func (ch *ChunkHeader) Verify() error {
	headHead, err := ch.cur.Peek(0, chunkHeaderCRCGap1)
	if err != nil {
		return wrapf(KindInvalidChunk, err, "read header crc region 1")
	}
	headTail, err := ch.cur.Peek(stringTableOffset, chunkDataStart-stringTableOffset)
	if err != nil {
		return wrapf(KindInvalidChunk, err, "read header crc region 2")
	}
	combined := append(append([]byte{}, headHead...), headTail...)
	if got := crc32IEEE(combined); got != ch.HeaderCRC {
		return newErr(KindInvalidChunk, "header CRC mismatch at %#x: have %#x, computed %#x", ch.base, ch.HeaderCRC, got)
	}

	if ch.NextRecordOffset <= chunkDataStart {
		if ch.DataCRC != 0 {
			return newErr(KindInvalidChunk, "data CRC should be 0 for empty data region at %#x", ch.base)
		}
		return nil
	}
	dataRegion, err := ch.cur.Peek(chunkDataStart, int(ch.NextRecordOffset)-chunkDataStart)
	if err != nil {
		return wrapf(KindInvalidChunk, err, "read data crc region")
	}
	if got := crc32IEEE(dataRegion); got != ch.DataCRC {
		return newErr(KindInvalidChunk, "data CRC mismatch at %#x: have %#x, computed %#x", ch.base, ch.DataCRC, got)
	}
	return nil
}

// loadStringTable walks all 64 bucket head chains once, idempotently.
func (ch *ChunkHeader) loadStringTable() {
	if ch.stringsOK {
		return
	}
	ch.stringsOK = true
	for b := 0; b < stringBucketCount; b++ {
		headOff, err := ch.cur.U32LEAt(stringTableOffset + b*4)
		if err != nil {
			continue
		}
		off := int(headOff)
		for off != 0 && off <= int(ch.NextRecordOffset) {
			if _, ok := ch.strings[off]; ok {
				break // cycle guard
			}
			ns, _, err := ParseNameString(ch.cur, off)
			if err != nil {
				warnf("string table entry unreadable", map[string]interface{}{"chunk": ch.base, "offset": off, "error": err.Error()})
				break
			}
			ch.strings[off] = ns
			off = int(ns.NextOffset)
		}
	}
}

// internString records an already-parsed NameString (typically one just
// read inline from a node's own bytes) in the chunk's table, so later
// back-references to the same offset resolve without re-parsing.
func (ch *ChunkHeader) internString(ns *NameString) {
	ch.loadStringTable()
	if _, ok := ch.strings[ns.Offset]; !ok {
		ch.strings[ns.Offset] = ns
	}
}

// AddString ensures offset is interned, loading it on demand if a BXML node
// mid-parse references a string not yet in the table (§4.3).
func (ch *ChunkHeader) AddString(offset int) (*NameString, error) {
	ch.loadStringTable()
	if ns, ok := ch.strings[offset]; ok {
		return ns, nil
	}
	ns, _, err := ParseNameString(ch.cur, offset)
	if err != nil {
		return nil, err
	}
	ch.strings[offset] = ns
	return ns, nil
}

// GetString returns a previously interned string, loading the table first.
func (ch *ChunkHeader) GetString(offset int) (*NameString, bool) {
	ch.loadStringTable()
	ns, ok := ch.strings[offset]
	return ns, ok
}

// AddTemplate creates and caches a TemplateDefinition at offset.
func (ch *ChunkHeader) AddTemplate(offset int) (*TemplateDefinition, error) {
	if td, ok := ch.templates[offset]; ok {
		return td, nil
	}
	td, err := ParseTemplateDefinition(ch.cur, offset)
	if err != nil {
		return nil, err
	}
	ch.templates[offset] = td
	return td, nil
}

// GetTemplate returns the cached definition or creates one.
func (ch *ChunkHeader) GetTemplate(offset int) (*TemplateDefinition, error) {
	if td, ok := ch.templates[offset]; ok {
		return td, nil
	}
	return ch.AddTemplate(offset)
}

// GetActualTemplate returns the template plus its rendered-ready root
// element tree, computing and caching it on first access.
func (ch *ChunkHeader) GetActualTemplate(offset int) (*TemplateDefinition, *Element, error) {
	td, err := ch.GetTemplate(offset)
	if err != nil {
		return nil, nil, err
	}
	root, err := td.Root(ch)
	if err != nil {
		return nil, nil, err
	}
	return td, root, nil
}

// IterateRecords walks records starting at base+0x200, calling fn for each.
// fn returns (continue, error); returning continue=false stops iteration
// without error. Iteration stops gracefully (no error surfaced to the
// caller of the chunk, only logged) on the first InvalidRecord.
func (ch *ChunkHeader) IterateRecords(fn func(*Record) (bool, error)) error {
	off := chunkDataStart
	limit := ch.base + int(ch.NextRecordOffset)
	for ch.base+off < limit {
		rec, n, err := ParseRecord(ch.cur, off, ch)
		if err != nil {
			if IsKind(err, KindInvalidRecord) {
				warnf("stopping chunk iteration at invalid record", map[string]interface{}{"chunk": ch.base, "offset": off, "error": err.Error()})
				return nil
			}
			return err
		}
		if rec.Size == 0 {
			break
		}
		cont, err := fn(rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		off += n
	}
	return nil
}
