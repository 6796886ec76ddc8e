package browser

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptEvaluator 记录表达式并按表达式返回预设结果
type scriptEvaluator struct {
	exprs   []string
	results map[string]string
}

func (e *scriptEvaluator) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	e.exprs = append(e.exprs, expr)
	if v, ok := e.results[expr]; ok {
		return json.RawMessage(v), nil
	}
	return json.RawMessage("null"), nil
}

func TestLocalStorageQuotesKeysAndValues(t *testing.T) {
	ev := &scriptEvaluator{}
	st := NewLocalStorage(ev)

	require.NoError(t, st.Set(context.Background(), `@@auth0spajs@@::a::b::c`, `{"body":"x\"y"}`))
	require.Len(t, ev.exprs, 1)
	assert.Equal(t, `window.localStorage.setItem("@@auth0spajs@@::a::b::c", "{\"body\":\"x\\\"y\"}")`, ev.exprs[0])
}

func TestLocalStorageGet(t *testing.T) {
	ev := &scriptEvaluator{results: map[string]string{
		`window.localStorage.getItem("present")`: `"value"`,
	}}
	st := NewLocalStorage(ev)

	v, ok, err := st.Get(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok, err = st.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotAndRestore(t *testing.T) {
	ev := &scriptEvaluator{results: map[string]string{
		"Object.keys(window.localStorage)": `["a","b"]`,
		`window.localStorage.getItem("a")`: `"1"`,
		`window.localStorage.getItem("b")`: `"2"`,
	}}
	st := NewLocalStorage(ev)

	snap, err := Snapshot(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, snap)

	ev.exprs = nil
	require.NoError(t, Restore(context.Background(), st, map[string]string{"a": "1"}))
	assert.Equal(t, []string{"window.localStorage.clear()", `window.localStorage.setItem("a", "1")`}, ev.exprs)
}
