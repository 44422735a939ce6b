package retrieval

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrInvalidFilter indicates a CEL filter failed to compile or did not
// produce a boolean.
var ErrInvalidFilter = errors.New("invalid retrieval filter")

// filterCache compiles CEL filters once per expression.
type filterCache struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func newFilterCache() (*filterCache, error) {
	env, err := cel.NewEnv(
		cel.Variable("node", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("type", cel.StringType),
		cel.Variable("hops", cel.IntType),
		cel.Variable("score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return &filterCache{env: env, programs: make(map[string]cel.Program)}, nil
}

func (c *filterCache) program(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.programs[expr]; ok {
		return prg, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("%w: %q must evaluate to bool, got %v", ErrInvalidFilter, expr, ast.OutputType())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	c.programs[expr] = prg
	return prg, nil
}

// keep evaluates prg for one candidate. Evaluation errors, such as a missing
// map key, drop the candidate.
func keep(prg cel.Program, r *Result) bool {
	var rec map[string]any
	typ := ""
	if r.Node != nil {
		rec = r.Node.Record()
		typ = r.Node.Type.String()
	} else {
		rec = map[string]any{"id": r.NodeID}
	}

	out, _, err := prg.Eval(map[string]any{
		"node":  rec,
		"type":  typ,
		"hops":  int64(r.Distance),
		"score": r.Score,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
