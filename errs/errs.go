// Package errs defines the error taxonomy shared by every stage of the
// TOSCA parsing pipeline. Each Kind corresponds to one row of the error
// taxonomy table; every Error carries the source Location it was raised
// at so diagnostics can be sorted and rendered without re-walking the tree.
package errs

import "fmt"

// Kind identifies the taxonomy bucket a diagnostic belongs to.
type Kind string

const (
	SchemaError                Kind = "SchemaError"
	UnsupportedVersionError    Kind = "UnsupportedVersionError"
	ImportError                Kind = "ImportError"
	TypeCycleError             Kind = "TypeCycleError"
	DuplicateTypeError         Kind = "DuplicateTypeError"
	UnknownTypeError           Kind = "UnknownTypeError"
	IncompatibleDerivationError Kind = "IncompatibleDerivationError"
	UnknownFieldError          Kind = "UnknownFieldError"
	MissingRequiredFieldError  Kind = "MissingRequiredFieldError"
	MissingRequiredInputError  Kind = "MissingRequiredInputError"
	ConstraintViolation        Kind = "ConstraintViolation"
	TypeMismatchError          Kind = "TypeMismatchError"
	InvalidScalarUnitError     Kind = "InvalidScalarUnitError"
	AmbiguousTargetError       Kind = "AmbiguousTargetError"
	NoMatchError               Kind = "NoMatchError"
	OccurrenceError            Kind = "OccurrenceError"
	FunctionEvaluationError    Kind = "FunctionEvaluationError"
	UnknownFunctionError       Kind = "UnknownFunctionError"
	SubstitutionMappingError   Kind = "SubstitutionMappingError"

	// DeprecatedTypeWarning is not one of spec §7's error-taxonomy rows:
	// it is the warning (never fatal) raised when a node resolves a type
	// registered as a historical alias (metadata.alias/deprecated), per
	// spec §8 scenario 6. UnknownTypeError does not fit since the type
	// IS known — it is a deliberately-kept secondary name for one.
	DeprecatedTypeWarning Kind = "DeprecatedTypeWarning"
)

// fatalKinds aborts the current pipeline stage per spec §7: unresolvable
// imports, type-derivation cycles, and unsupported version.
var fatalKinds = map[Kind]bool{
	ImportError:             true,
	TypeCycleError:          true,
	UnsupportedVersionError: true,
}

// IsFatal reports whether a Kind aborts the enclosing stage rather than
// being accumulated as a best-effort diagnostic.
func IsFatal(k Kind) bool {
	return fatalKinds[k]
}

// Location pinpoints where in the source YAML a diagnostic originates.
type Location struct {
	File   string
	Line   int
	Column int
	Path   string // dotted/bracketed path within the document, e.g. "node_templates.db.properties.port"
}

func (l Location) String() string {
	if l.File == "" && l.Line == 0 {
		return l.Path
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Error is the concrete error type returned by every exported operation
// in the core. It wraps an optional underlying cause the way the
// teacher's formatter wraps yaml errors with fmt.Errorf("%w", err).
type Error struct {
	Kind     Kind
	Message  string
	Source   Location
	Related  []Location
	Cause    error
}

func New(kind Kind, source Location, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Source: source}
}

func Wrap(kind Kind, source Location, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Source: source, Cause: cause}
}

func (e *Error) Error() string {
	if e.Source.File != "" || e.Source.Line != 0 || e.Source.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, e.Source, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Source)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
