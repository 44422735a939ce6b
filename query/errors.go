package query

import (
	"errors"
	"fmt"
)

// ErrQueryParse is matched by every *ParseError.
var ErrQueryParse = errors.New("query parse error")

// ParseError reports malformed query text, or a parameter the query names
// but the caller did not supply.
type ParseError struct {
	// Pos is the byte offset of the offending token.
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query: parse error at position %d: %s", e.Pos, e.Msg)
}

// Unwrap returns ErrQueryParse so callers can use errors.Is.
func (e *ParseError) Unwrap() error { return ErrQueryParse }
