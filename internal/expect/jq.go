package expect

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/pkg/errors"
)

// JQ evaluates a jq expression against a JSON document and returns the
// first value it produces.
func JQ(ctx context.Context, document []byte, expr string) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't parse jq expression %q", expr)
	}

	var input any
	if err := json.Unmarshal(document, &input); err != nil {
		return nil, errors.Wrap(err, "response is not valid JSON")
	}

	iter := query.RunWithContext(ctx, input)

	v, ok := iter.Next()
	if !ok {
		return nil, errors.Errorf("jq expression %q produced no value", expr)
	}

	if err, ok := v.(error); ok {
		return nil, errors.Wrapf(err, "couldn't evaluate jq expression %q", expr)
	}

	return v, nil
}

// JQBool evaluates a jq expression that must produce a boolean.
func JQBool(ctx context.Context, document []byte, expr string) (bool, error) {
	v, err := JQ(ctx, document, expr)
	if err != nil {
		return false, err
	}

	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("jq expression %q produced %T, not a boolean", expr, v)
	}

	return b, nil
}
