package toolregistry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/toolregistry"
)

var pingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
	},
	"required": []any{"name"},
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := toolregistry.New()
	handler := func(ctx context.Context, args json.RawMessage) (any, error) { return "ok", nil }

	require.NoError(t, r.Register("ping", "pings back", pingSchema, handler))
	err := r.Register("ping", "pings back", pingSchema, handler)
	require.ErrorIs(t, err, toolregistry.ErrAlreadyRegistered)
}

func TestInvokeUnknownToolReturnsError(t *testing.T) {
	r := toolregistry.New()
	res, err := r.Invoke(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Result)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestInvokeValidatesArguments(t *testing.T) {
	r := toolregistry.New()
	handler := func(ctx context.Context, args json.RawMessage) (any, error) { return "ok", nil }
	require.NoError(t, r.Register("ping", "pings back", pingSchema, handler))

	res, err := r.Invoke(context.Background(), "ping", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, res.Error, "schema validation")

	res, err = r.Invoke(context.Background(), "ping", json.RawMessage(`{"name":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Result)
}

func TestInvokeNeverPropagatesHandlerError(t *testing.T) {
	r := toolregistry.New()
	handler := func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, assert.AnError
	}
	require.NoError(t, r.Register("boom", "always fails", nil, handler))

	res, err := r.Invoke(context.Background(), "boom", nil)
	require.NoError(t, err)
	assert.Equal(t, assert.AnError.Error(), res.Error)
}

func TestInvokeBatchPreservesOrder(t *testing.T) {
	r := toolregistry.New()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, r.Register(name, "echo "+name, nil, func(ctx context.Context, args json.RawMessage) (any, error) {
			return name, nil
		}))
	}

	calls := []toolregistry.Call{{ID: "1", Name: "c"}, {ID: "2", Name: "a"}, {ID: "3", Name: "b"}}
	results, err := r.InvokeBatch(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].Name)
	assert.Equal(t, "a", results[1].Name)
	assert.Equal(t, "b", results[2].Name)
}

func TestDeclarationsForSkipsUnknownNames(t *testing.T) {
	r := toolregistry.New()
	require.NoError(t, r.Register("ping", "pings back", pingSchema, func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	}))

	decls := r.DeclarationsFor([]string{"ping", "missing"})
	require.Len(t, decls, 1)
	assert.Equal(t, "ping", decls[0].Name)
}
