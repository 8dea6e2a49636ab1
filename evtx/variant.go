package evtx

import (
	"fmt"
	"strings"
)

// VariantType is one of the 24 discriminated value kinds (§3/§4.5).
type VariantType uint8

const (
	VTNull         VariantType = 0x00
	VTWString      VariantType = 0x01
	VTString       VariantType = 0x02
	VTInt8         VariantType = 0x03
	VTUint8        VariantType = 0x04
	VTInt16        VariantType = 0x05
	VTUint16       VariantType = 0x06
	VTInt32        VariantType = 0x07
	VTUint32       VariantType = 0x08
	VTInt64        VariantType = 0x09
	VTUint64       VariantType = 0x0A
	VTFloat        VariantType = 0x0B
	VTDouble       VariantType = 0x0C
	VTBoolean      VariantType = 0x0D
	VTBinary       VariantType = 0x0E
	VTGuid         VariantType = 0x0F
	VTSize         VariantType = 0x10
	VTFileTime     VariantType = 0x11
	VTSystemTime   VariantType = 0x12
	VTSid          VariantType = 0x13
	VTHex32        VariantType = 0x14
	VTHex64        VariantType = 0x15
	VTBXml         VariantType = 0x21
	VTWStringArray VariantType = 0x81
)

// arrayFlag marks an array-of-T type: base type in the low bits, 0x80 set.
const arrayFlag VariantType = 0x80

// Value is a decoded variant value. Exactly one of the typed fields is
// meaningful, selected by Type.
type Value struct {
	Type VariantType

	Str    string
	I64    int64
	U64    uint64
	F64    float64
	Bool   bool
	Bin    []byte
	Array  []string
	// BXml holds an embedded fragment's location for deferred recursive
	// rendering (§4.7); Owner is the chunk whose byte range base_offset is
	// relative to.
	BXmlOffset int
	BXmlLength int
	Owner      *ChunkHeader
}

// Substitution pairs a declared substitution slot with its decoded value.
type Substitution struct {
	ID    uint16
	Type  VariantType
	Value Value
}

// decodeMode distinguishes the two VariantDecoder entry points of §4.5.
type decodeMode int

const (
	modeTopLevel decodeMode = iota
	modeSubstitution
)

// decodeVariant decodes one value of the given type at the cursor's current
// position. In modeSubstitution, declaredSize is authoritative: the cursor
// is repositioned to start+declaredSize after decoding regardless of how
// many bytes the type-specific decode actually consumed. In modeTopLevel,
// declaredSize is ignored (the value is length-prefixed on the wire).
func decodeVariant(cur *BinaryCursor, owner *ChunkHeader, mode decodeMode, vt VariantType, declaredSize int) (Value, error) {
	start := cur.Tell()

	if mode == modeSubstitution && vt&arrayFlag != 0 && vt != VTWStringArray {
		// Arrays of non-string element types are not decoded: the value
		// carries only the array type and no elements. The cursor still
		// advances by the declared size so sibling offsets stay aligned.
		v, err := decodeArrayOfFixed(cur, vt&^arrayFlag, declaredSize)
		cur.Seek(start + declaredSize)
		return v, err
	}

	switch vt {
	case VTNull:
		if mode == modeSubstitution {
			cur.Seek(start + declaredSize)
		}
		return Value{Type: VTNull}, nil

	case VTWString:
		return decodeWString(cur, mode, declaredSize)

	case VTString:
		return decodeAnsiString(cur, mode, declaredSize)

	case VTInt8, VTUint8:
		b, err := cur.U8()
		v := Value{Type: vt}
		if err == nil {
			v.U64 = uint64(b)
			v.I64 = int64(int8(b))
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTInt16, VTUint16:
		w, err := cur.U16LE()
		v := Value{Type: vt}
		if err == nil {
			v.U64 = uint64(w)
			v.I64 = int64(int16(w))
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTInt32, VTUint32:
		d, err := cur.U32LE()
		v := Value{Type: vt}
		if err == nil {
			v.U64 = uint64(d)
			v.I64 = int64(int32(d))
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTInt64, VTUint64, VTSize:
		q, err := cur.U64LE()
		v := Value{Type: vt}
		if err == nil {
			v.U64 = q
			v.I64 = int64(q)
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTFloat:
		f, err := cur.F32LEAt(cur.Tell())
		if err == nil {
			cur.Seek(cur.Tell() + 4)
		}
		v := Value{Type: vt, F64: float64(f)}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTDouble:
		f, err := cur.F64LEAt(cur.Tell())
		if err == nil {
			cur.Seek(cur.Tell() + 8)
		}
		v := Value{Type: vt, F64: f}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTBoolean:
		d, err := cur.U32LE()
		v := Value{Type: vt, Bool: d != 0}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTBinary:
		n := declaredSize
		if mode == modeTopLevel {
			dw, err := cur.U32LE()
			if err != nil {
				return Value{}, err
			}
			n = int(dw)
		}
		buf, err := cur.ReadBytes(n)
		v := Value{Type: vt, Bin: append([]byte{}, buf...)}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTGuid:
		buf, err := cur.ReadBytes(16)
		v := Value{Type: vt}
		if err == nil {
			v.Str = formatGUID(buf)
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTFileTime:
		q, err := cur.U64LE()
		v := Value{Type: vt, U64: q}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTSystemTime:
		buf, err := cur.ReadBytes(16)
		v := Value{Type: vt}
		if err == nil {
			st := SystemTime{}
			st.Year = leU16(buf[0:])
			st.Month = leU16(buf[2:])
			st.DayOfWeek = leU16(buf[4:])
			st.Day = leU16(buf[6:])
			st.Hour = leU16(buf[8:])
			st.Minute = leU16(buf[10:])
			st.Second = leU16(buf[12:])
			st.Milliseconds = leU16(buf[14:])
			v.Str = st.Time().UTC().Format("2006-01-02T15:04:05.000Z")
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTSid:
		n := declaredSize
		buf, err := cur.ReadBytes(n)
		v := Value{Type: vt}
		if err == nil {
			v.Str = formatSID(buf)
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTHex32:
		d, err := cur.U32LE()
		v := Value{Type: vt, U64: uint64(d)}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTHex64:
		q, err := cur.U64LE()
		v := Value{Type: vt, U64: q}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	case VTBXml:
		n := declaredSize
		if mode == modeTopLevel {
			dw, err := cur.U32LE()
			if err != nil {
				return Value{}, err
			}
			n = int(dw)
		}
		off := cur.Tell()
		v := Value{Type: vt, BXmlOffset: off, BXmlLength: n, Owner: owner}
		cur.Seek(off + n)
		finishSubst(cur, mode, start, declaredSize)
		return v, nil

	case VTWStringArray:
		n := declaredSize
		if mode == modeTopLevel {
			w, err := cur.U16LE()
			if err != nil {
				return Value{}, err
			}
			n = int(w) * 2
		}
		raw, err := cur.ReadBytes(n)
		v := Value{Type: vt}
		if err == nil {
			v.Array = splitWStringArray(raw)
		}
		finishSubst(cur, mode, start, declaredSize)
		return v, err

	default:
		warnf("unknown variant type, advancing by declared size", map[string]interface{}{"type": fmt.Sprintf("%#x", uint8(vt)), "declared": declaredSize})
		cur.Seek(start + declaredSize)
		return Value{Type: vt}, wrapf(KindUnknownVariant, ErrOutOfBounds, "unknown variant type %#x", uint8(vt))
	}
}

// finishSubst enforces the substitution-mode contract: the cursor lands at
// exactly start+declaredSize regardless of the type's natural width.
func finishSubst(cur *BinaryCursor, mode decodeMode, start, declaredSize int) {
	if mode == modeSubstitution {
		cur.Seek(start + declaredSize)
	}
}

func decodeWString(cur *BinaryCursor, mode decodeMode, declaredSize int) (Value, error) {
	start := cur.Tell()
	if mode == modeTopLevel {
		s, err := cur.ReadWStringPrefixed()
		return Value{Type: VTWString, Str: s}, err
	}
	s, err := cur.ReadUTF16Exact(declaredSize)
	cur.Seek(start + declaredSize)
	return Value{Type: VTWString, Str: s}, err
}

func decodeAnsiString(cur *BinaryCursor, mode decodeMode, declaredSize int) (Value, error) {
	start := cur.Tell()
	if mode == modeTopLevel {
		n, err := cur.U16LE()
		if err != nil {
			return Value{}, err
		}
		buf, err := cur.ReadBytes(int(n))
		return Value{Type: VTString, Str: string(buf)}, err
	}
	buf, err := cur.ReadBytes(declaredSize)
	cur.Seek(start + declaredSize)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: VTString, Str: strings.TrimRight(string(buf), "\x00")}, nil
}

func decodeArrayOfFixed(cur *BinaryCursor, elemType VariantType, declaredSize int) (Value, error) {
	return Value{Type: elemType | arrayFlag}, nil
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// formatGUID renders {DDDDDDDD-DDDD-DDDD-DDDD-DDDDDDDDDDDD} uppercase, with
// the first three groups little-endian and the last 8 bytes in their
// on-disk (big-endian-ordered) sequence, per §4.5.
func formatGUID(b []byte) string {
	return strings.ToUpper(fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		leU32(b[0:4]), leU16(b[4:6]), leU16(b[6:8]),
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15]))
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// formatSID renders S-{revision}-{authority}[-{sub}]*, with authority taken
// as the big-endian interpretation of the 6-byte identifier authority.
func formatSID(b []byte) string {
	if len(b) < 8 {
		return ""
	}
	revision := b[0]
	subAuthorityCount := b[1]
	var authority uint64
	for i := 2; i < 8; i++ {
		authority = authority<<8 | uint64(b[i])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	off := 8
	for i := 0; i < int(subAuthorityCount) && off+4 <= len(b); i++ {
		sub := leU32(b[off : off+4])
		fmt.Fprintf(&sb, "-%d", sub)
		off += 4
	}
	return sb.String()
}

// splitWStringArray splits a UTF-16LE blob on U+0000 after stripping
// trailing NULs, so no spurious empty tail is produced (§4.5).
func splitWStringArray(raw []byte) []string {
	s := decodeUTF16LE(raw) // trailing NULs already stripped by decodeUTF16LE
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\x00")
	return parts
}

// FormatForRender formats a decoded Value the way the renderer emits it
// into substituted XML text (§4.5/§4.7): Hex32/Hex64 as 0x{x}, Binary as
// uppercase hex, FileTime/SystemTime as ISO-8601 UTC, arrays joined with
// ", ", Null as empty.
func (v Value) FormatForRender() string {
	switch v.Type {
	case VTNull:
		return ""
	case VTHex32:
		return fmt.Sprintf("0x%x", uint32(v.U64))
	case VTHex64:
		return fmt.Sprintf("0x%x", v.U64)
	case VTBinary:
		return strings.ToUpper(fmt.Sprintf("%X", v.Bin))
	case VTFileTime:
		return filetimeToTime(v.U64).Format("2006-01-02T15:04:05.000Z")
	case VTSystemTime, VTGuid, VTSid, VTString, VTWString:
		return v.Str
	case VTBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case VTFloat, VTDouble:
		return fmt.Sprintf("%v", v.F64)
	case VTWStringArray:
		return strings.Join(v.Array, ", ")
	case VTInt8, VTInt16, VTInt32, VTInt64:
		return fmt.Sprintf("%d", v.I64)
	case VTUint8, VTUint16, VTUint32, VTUint64, VTSize:
		return fmt.Sprintf("%d", v.U64)
	default:
		return v.Str
	}
}
