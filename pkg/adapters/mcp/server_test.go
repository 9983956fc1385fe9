package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/pkg/domain"
)

type mockEngine struct {
	params domain.Params
	source string
}

func (m *mockEngine) TransformSheet(_ context.Context, name string, params domain.Params) (string, error) {
	m.params = params
	if name != "index.xrl" {
		return "", fmt.Errorf("%w: %s", domain.ErrSheetNotFound, name)
	}
	return "<p/>\n", nil
}

func (m *mockEngine) TransformBytes(_ context.Context, data []byte, params domain.Params) (string, error) {
	m.source = string(data)
	m.params = params
	return "text", nil
}

func (m *mockEngine) Sheets() ([]string, error) {
	return []string{"index.xrl", "users/show.xrl"}, nil
}

func TestHandleTransform(t *testing.T) {
	eng := &mockEngine{}
	s := NewServer(eng, nil)

	res, err := s.handleTransform(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"sheet":  "index.xrl",
		"params": map[string]any{"id": 7.0, "debug": true, "name": "ann", "skip": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, TransformResponse{Sheet: "index.xrl", Output: "<p/>\n"}, res)
	assert.Equal(t, domain.Params{"id": "7", "debug": "true", "name": "ann"}, eng.params)

	_, err = s.handleTransform(context.Background(), mcp.CallToolRequest{}, map[string]any{"sheet": "nope.xrl"})
	assert.ErrorIs(t, err, domain.ErrSheetNotFound)

	_, err = s.handleTransform(context.Background(), mcp.CallToolRequest{}, map[string]any{})
	assert.Error(t, err)
}

func TestHandleTransformSource(t *testing.T) {
	eng := &mockEngine{}
	s := NewServer(eng, nil)

	res, err := s.handleTransformSource(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"source": "<x:requestsheet/>",
		"params": `{"q": "go"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "text", res.Output)
	assert.Equal(t, "<x:requestsheet/>", eng.source)
	assert.Equal(t, domain.Params{"q": "go"}, eng.params)

	_, err = s.handleTransformSource(context.Background(), mcp.CallToolRequest{}, map[string]any{"source": "<a/>", "params": "[1"})
	assert.Error(t, err)
}

func TestToParams(t *testing.T) {
	p, err := toParams(nil)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = toParams(map[string]any{"bad": []any{1}})
	assert.Error(t, err)
}

func TestSheetsJSON(t *testing.T) {
	s := NewServer(&mockEngine{}, nil)
	data, err := s.sheetsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["index.xrl", "users/show.xrl"]`, string(data))
}
