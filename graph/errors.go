package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrSchemaValidation indicates a node failed schema validation in strict mode.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrMissingEndpoint indicates a relationship referenced a node that does not exist.
	// Stores never create placeholder nodes.
	ErrMissingEndpoint = errors.New("relationship endpoint not found")

	// ErrRelationshipSchema indicates the (from, relation, to) triple is not legal.
	ErrRelationshipSchema = errors.New("relationship not allowed by schema")

	// ErrBackendUnavailable indicates the backend could not be reached or its
	// dependency is missing. Store methods report it through logs and a
	// false/nil return; it is only returned from constructors and Ping.
	ErrBackendUnavailable = errors.New("graph backend unavailable")

	// ErrNodeNotFound indicates the requested node does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidArgument indicates a malformed call, such as an empty id.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error kinds categorize graph errors.
const (
	KindSchemaValidation   = "schema_validation"
	KindMissingEndpoint    = "missing_endpoint"
	KindRelationshipSchema = "relationship_schema"
	KindBackendUnavailable = "backend_unavailable"
	KindNotFound           = "not_found"
	KindInvalidArgument    = "invalid_argument"
)

var kindSentinels = map[string]error{
	KindSchemaValidation:   ErrSchemaValidation,
	KindMissingEndpoint:    ErrMissingEndpoint,
	KindRelationshipSchema: ErrRelationshipSchema,
	KindBackendUnavailable: ErrBackendUnavailable,
	KindNotFound:           ErrNodeNotFound,
	KindInvalidArgument:    ErrInvalidArgument,
}

// Error is a structured error carrying the failed operation and its kind.
//
// errors.Is matches an *Error against the sentinel for its kind, against an
// *Error target with the same Kind (and Op, when the target sets one), and
// against anything in the wrapped chain.
//
//	_, err := store.AddRelationship(ctx, "m1", "p9", schema.RelSentBy, nil)
//	if errors.Is(err, graph.ErrMissingEndpoint) {
//		// p9 has not been ingested yet
//	}
type Error struct {
	// Op is the operation that failed (e.g., "AddNode").
	Op string

	// Kind categorizes the error (e.g., KindSchemaValidation).
	Kind string

	// Err is the underlying error.
	Err error

	// Context holds ids and other debugging details.
	Context map[string]any
}

// NewError creates an Error of the given kind.
func NewError(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("graph: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("graph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("graph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching by kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind && (t.Op == "" || e.Op == t.Op) {
			return true
		}
	}
	if s, ok := kindSentinels[e.Kind]; ok && s == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
