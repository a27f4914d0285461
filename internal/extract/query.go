package extract

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rvergara/maestro/pkg/schema"
)

// QueryEngine evaluates jq expressions against recovered model output, used
// for pulling nested fields out of stage results. Compiled *Code objects are
// cached and reused across goroutines.
type QueryEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQueryEngine creates a jq query engine with an empty compile cache.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{cache: make(map[string]*gojq.Code)}
}

// Query compiles (or reuses) the jq expression and runs it against data.
// A single output is returned directly; multiple outputs are collected into
// a []any; zero outputs yield nil.
func (e *QueryEngine) Query(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}

	code, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, data)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (e *QueryEngine) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Block $ENV and env access from expressions.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = code
	return code, nil
}
