package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseAlloc   Phase = "alloc"   // pool and boundary allocation
	PhaseEncode  Phase = "encode"  // domain to wire
	PhaseDecode  Phase = "decode"  // wire to domain
	PhaseGraph   Phase = "graph"   // control-flow graph model
	PhaseQueue   Phase = "queue"   // message queue
	PhaseCommand Phase = "command" // command channel
	PhasePatch   Phase = "patch"   // process memory patching
	PhasePlugin  Phase = "plugin"  // plugin hosting
	PhaseConfig  Phase = "config"  // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindContractViolation Kind = "contract_violation"
	KindAllocation        Kind = "allocation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindOverflow          Kind = "overflow"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidInput      Kind = "invalid_input"
	KindNilPointer        Kind = "nil_pointer"
	KindNotFound          Kind = "not_found"
	KindClosed            Kind = "closed"
	KindMemory            Kind = "memory"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Call   string
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Call != "" {
		b.WriteString(" in ")
		b.WriteString(e.Call)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Call sets the boundary call name
func (b *Builder) Call(name string) *Builder {
	b.err.Call = name
	return b
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the element type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Contract panics with a contract violation built from b.
func (b *Builder) Contract() {
	b.err.Kind = KindContractViolation
	panic(&b.err)
}

// Convenience constructors for common error patterns

// SizeMismatch creates the contract violation raised when a list's byte size
// does not equal count times the element size.
func SizeMismatch(phase Phase, call, typeName string, count int32, expected, actual uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContractViolation,
		Call:   call,
		Type:   typeName,
		Detail: fmt.Sprintf("count %d needs %d bytes, handle declares %d", count, expected, actual),
		Value:  actual,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// PoolExhausted creates the error returned when a pool may not grow another slab
func PoolExhausted(typeName string, slabs, batch int) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindAllocation,
		Type:   typeName,
		Detail: fmt.Sprintf("slab limit %d reached (%d objects per slab)", slabs, batch),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: detail,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, typeName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Type:   typeName,
		Detail: "nil pointer",
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for operations on a closed resource
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// MemoryAccess creates an error for a failed debuggee memory access
func MemoryAccess(phase Phase, op string, addr uint64, size int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemory,
		Call:   op,
		Detail: fmt.Sprintf("%d bytes at %#x", size, addr),
		Value:  addr,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a plugin instantiation error
func Instantiation(name string, cause error) *Error {
	return &Error{
		Phase:  PhasePlugin,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate plugin %q", name),
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// IsContractViolation reports whether v, typically a recovered panic value,
// is a contract violation.
func IsContractViolation(v any) bool {
	e, ok := v.(*Error)
	return ok && e.Kind == KindContractViolation
}
