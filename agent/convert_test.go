package agent

import (
	"encoding/json"
	"errors"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"testing"
)

func TestToRemoteObject(t *testing.T) {
	tests := []struct {
		name   string
		mirror string
		want   string
	}{
		{"undefined", `{"type":"undefined"}`, `{"type":"undefined","description":"undefined"}`},
		{"null", `{"type":"null"}`, `{"type":"object","subtype":"null","description":"null"}`},
		{"number", `{"type":"number","value":3.5,"text":"3.5"}`, `{"type":"number","value":3.5,"description":"3.5"}`},
		{"boolean", `{"type":"boolean","value":true,"text":"true"}`, `{"type":"boolean","value":true,"description":"true"}`},
		{"array", `{"handle":9,"type":"object","className":"Array"}`,
			`{"type":"object","subtype":"array","className":"Array","description":"Array","objectId":"9"}`},
		{"function", `{"handle":"heap:2","type":"function","name":"main"}`,
			`{"type":"function","className":"Function","description":"function main()","objectId":"heap:2"}`},
		{"regexp", `{"handle":4,"type":"regexp","text":"/a+/"}`,
			`{"type":"object","subtype":"regexp","className":"RegExp","description":"/a+/","objectId":"4"}`},
		{"error", `{"handle":8,"type":"error","className":"TypeError","text":"TypeError: boom"}`,
			`{"type":"object","subtype":"error","className":"TypeError","description":"TypeError: boom","objectId":"8"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(toRemoteObject(gjson.Parse(tt.mirror)))
			assert.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestToPropertiesIncludesPrototype(t *testing.T) {
	mirror := gjson.Parse(`{"handle":1,"type":"object","className":"Object","properties":[],"protoObject":{"ref":2},"constructorFunction":{"ref":3}}`)
	refs := newRefTable(json.RawMessage(`[{"handle":2,"type":"object","className":"Object"},{"handle":3,"type":"function","name":"Object"}]`))
	properties := toProperties(mirror, refs)
	if assert.Len(t, properties, 2) {
		assert.Equal(t, "__proto__", properties[0].Name)
		assert.Equal(t, "2", properties[0].Value.ObjectID)
		assert.Equal(t, "constructor", properties[1].Name)
		assert.Equal(t, "function", properties[1].Value.Type)
		assert.False(t, properties[1].IsOwn)
	}
}

func TestToScriptParsed(t *testing.T) {
	script := toScriptParsed(gjson.Parse(`{"id":30,"name":"node.js","lineOffset":2,"columnOffset":1,"lineCount":0}`))
	assert.Equal(t, "30", script.ScriptID)
	assert.Equal(t, "node.js", script.URL)
	assert.Equal(t, 2, script.StartLine)
	assert.Equal(t, 1, script.StartColumn)
	assert.Equal(t, 2, script.EndLine)
}

func TestObjectGroups(t *testing.T) {
	groups := NewObjectGroups()
	groups.Acquire("console")
	groups.Acquire("console")
	groups.Acquire("")
	assert.Equal(t, 2, groups.Count("console"))
	assert.Equal(t, 0, groups.Count(""))

	assert.NoError(t, groups.Release("console", "test"))
	assert.Equal(t, 0, groups.Count("console"))

	err := groups.Release("console", "test.release")
	assert.True(t, errors.Is(err, e.ErrReleaseUnbalanced))
	assert.Contains(t, err.Error(), "test.release")
	assert.Equal(t, 0, groups.Count("console"))
}
