package evtx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a decoding failure per the error table in the design doc.
// Most Kinds are recoverable at some enclosing scope; callers that need to
// distinguish fatal-for-file from skip-and-continue should switch on Kind
// rather than on the wrapped error text.
type Kind int

const (
	// KindIO covers failures reading the underlying file.
	KindIO Kind = iota
	// KindInvalidHeader covers a FileHeader that fails verify().
	KindInvalidHeader
	// KindInvalidChunk covers a ChunkHeader CRC or magic mismatch.
	KindInvalidChunk
	// KindInvalidRecord covers a record magic/size mismatch.
	KindInvalidRecord
	// KindOutOfBounds covers any cursor read past the slab or declared region.
	KindOutOfBounds
	// KindUnknownVariant covers an unrecognized VariantType code.
	KindUnknownVariant
	// KindUnknownToken covers an unrecognized BXML token byte.
	KindUnknownToken
	// KindTemplateMissing covers a TemplateInstance whose offset has no entry.
	KindTemplateMissing
	// KindSubstitutionHeaderInvalid covers a substitution header that fails sanity bounds.
	KindSubstitutionHeaderInvalid
	// KindCatalogError covers a failure from a CatalogProvider collaborator.
	KindCatalogError
	// KindMessageRequiredMissing covers message_strategy=required with no template.
	KindMessageRequiredMissing
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IOError"
	case KindInvalidHeader:
		return "InvalidHeader"
	case KindInvalidChunk:
		return "InvalidChunk"
	case KindInvalidRecord:
		return "InvalidRecord"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindUnknownVariant:
		return "UnknownVariant"
	case KindUnknownToken:
		return "UnknownToken"
	case KindTemplateMissing:
		return "TemplateMissing"
	case KindSubstitutionHeaderInvalid:
		return "SubstitutionHeaderInvalid"
	case KindCatalogError:
		return "CatalogError"
	case KindMessageRequiredMissing:
		return "MessageRequiredMissing"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with a causal chain via pkg/errors, so callers can
// still errors.Cause() down to the root I/O or parse failure.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }
func (e *Error) Cause() error  { return e.err }

// wrapf builds an *Error of the given Kind, wrapping err with op context.
func wrapf(kind Kind, err error, op string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(op, args...), err: errors.WithStack(err)}
}

// newErr builds an *Error with no underlying cause (a pure validation failure).
func newErr(kind Kind, op string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(op, args...)}
}

// ErrOutOfBounds is returned (wrapped) by BinaryCursor reads past the slab.
var ErrOutOfBounds = errors.New("out of bounds")

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
