package evtx

const (
	fileHeaderMagic  = "ElfFile\x00"
	fileHeaderSize   = 0x1000
	chunkSize        = 0x10000
	fileHeaderCRCEnd = 0x78
)

// FileHeader is the 4096-byte header at offset 0 of an EVTX file (§3).
type FileHeader struct {
	cur *BinaryCursor

	Magic           string
	OldestChunk     uint64
	CurrentChunk    uint64
	NextRecordID    uint64
	HeaderSize      uint32
	MinorVersion    uint16
	MajorVersion    uint16
	HeaderChunkSize uint16
	ChunkCount      uint16
	Flags           uint32
	Checksum        uint32
}

// FlagDirty and FlagFull are the two defined bits of FileHeader.Flags.
const (
	FlagDirty uint32 = 1 << 0
	FlagFull  uint32 = 1 << 1
)

// ParseFileHeader reads the fixed-offset fields of the file header from cur
// (which must be positioned over the whole file slab).
func ParseFileHeader(cur *BinaryCursor) (*FileHeader, error) {
	h := &FileHeader{cur: cur}

	magicBytes, err := cur.Peek(0, 8)
	if err != nil {
		return nil, wrapf(KindIO, err, "read file header magic")
	}
	h.Magic = string(magicBytes)

	if h.OldestChunk, err = cur.U64LEAt(8); err != nil {
		return nil, wrapf(KindIO, err, "read oldest chunk number")
	}
	if h.CurrentChunk, err = cur.U64LEAt(16); err != nil {
		return nil, wrapf(KindIO, err, "read current chunk number")
	}
	if h.NextRecordID, err = cur.U64LEAt(24); err != nil {
		return nil, wrapf(KindIO, err, "read next record number")
	}
	if h.HeaderSize, err = cur.U32LEAt(32); err != nil {
		return nil, wrapf(KindIO, err, "read header size")
	}
	if h.MinorVersion, err = cur.U16LEAt(36); err != nil {
		return nil, wrapf(KindIO, err, "read minor version")
	}
	if h.MajorVersion, err = cur.U16LEAt(38); err != nil {
		return nil, wrapf(KindIO, err, "read major version")
	}
	if h.HeaderChunkSize, err = cur.U16LEAt(40); err != nil {
		return nil, wrapf(KindIO, err, "read header chunk size")
	}
	if h.ChunkCount, err = cur.U16LEAt(42); err != nil {
		return nil, wrapf(KindIO, err, "read chunk count")
	}
	// bytes 44..0x78 are reserved/unused in this spec's scope.
	if h.Flags, err = cur.U32LEAt(120); err != nil {
		return nil, wrapf(KindIO, err, "read flags")
	}
	if h.Checksum, err = cur.U32LEAt(124); err != nil {
		return nil, wrapf(KindIO, err, "read checksum")
	}
	return h, nil
}

// Verify checks magic, version, header-chunk-size and checksum per §3/§4.2.
func (h *FileHeader) Verify() error {
	if h.Magic != fileHeaderMagic {
		return newErr(KindInvalidHeader, "bad magic %q", h.Magic)
	}
	if h.MajorVersion != 3 {
		return newErr(KindInvalidHeader, "unsupported major version %d", h.MajorVersion)
	}
	if h.MinorVersion != 1 && h.MinorVersion != 2 {
		return newErr(KindInvalidHeader, "unsupported minor version %d", h.MinorVersion)
	}
	if h.HeaderChunkSize != fileHeaderSize {
		return newErr(KindInvalidHeader, "unexpected header chunk size %#x", h.HeaderChunkSize)
	}
	region, err := h.cur.Peek(0, fileHeaderCRCEnd)
	if err != nil {
		return wrapf(KindInvalidHeader, err, "read checksum region")
	}
	if got := crc32IEEE(region); got != h.Checksum {
		return newErr(KindInvalidHeader, "checksum mismatch: file header has %#x, computed %#x", h.Checksum, got)
	}
	return nil
}

// IsDirty reports whether FlagDirty is set.
func (h *FileHeader) IsDirty() bool { return h.Flags&FlagDirty != 0 }

// IsFull reports whether FlagFull is set.
func (h *FileHeader) IsFull() bool { return h.Flags&FlagFull != 0 }

// Chunks yields ChunkHeaders in file order. Unless includeInactive is set,
// iteration stops at ChunkCount chunks even if more fit in the file.
func (h *FileHeader) Chunks(includeInactive bool) ([]*ChunkHeader, error) {
	var chunks []*ChunkHeader
	slabLen := h.cur.Len()
	for i := 0; ; i++ {
		if !includeInactive && uint16(i) >= h.ChunkCount {
			break
		}
		off := fileHeaderSize + i*chunkSize
		if off+chunkSize > slabLen {
			break
		}
		ch, err := ParseChunkHeader(h.cur.Clone(off), off)
		if err != nil {
			warnf("skipping unreadable chunk", map[string]interface{}{"offset": off, "error": err.Error()})
			continue
		}
		chunks = append(chunks, ch)
	}
	return chunks, nil
}

// GetRecord scans only chunks whose log_first..log_last range contains n.
func (h *FileHeader) GetRecord(n uint64) (*Record, error) {
	chunks, err := h.Chunks(false)
	if err != nil {
		return nil, err
	}
	for _, ch := range chunks {
		if n < ch.LogFirstRecordNumber || n > ch.LogLastRecordNumber {
			continue
		}
		var found *Record
		err := ch.IterateRecords(func(r *Record) (bool, error) {
			if r.RecordNumber == n {
				found = r
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, newErr(KindInvalidRecord, "record %d not found", n)
}
