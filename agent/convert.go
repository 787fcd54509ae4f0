package agent

import (
	"encoding/json"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/tidwall/gjson"
	"strconv"
)

// V8 属性特性
const (
	attributeReadOnly   = 1
	attributeDontEnum   = 2
	attributeDontDelete = 4
)

// refTable 响应 refs 中的对象，按句柄索引
type refTable map[string]gjson.Result

func newRefTable(refs json.RawMessage) refTable {
	table := make(refTable)
	gjson.ParseBytes(refs).ForEach(func(_, ref gjson.Result) bool {
		table[ref.Get("handle").String()] = ref
		return true
	})
	return table
}

// resolve ref 为引用时取出 refs 中的对象
func (t refTable) resolve(value gjson.Result) gjson.Result {
	if value.Get("type").Exists() {
		return value
	}
	if ref := value.Get("ref"); ref.Exists() {
		if resolved, ok := t[ref.String()]; ok {
			return resolved
		}
	}
	return value
}

// objectID 句柄转为前端的 objectId，注入返回的句柄已经是字符串
func objectID(mirror gjson.Result) string {
	handle := mirror.Get("handle")
	if !handle.Exists() {
		handle = mirror.Get("ref")
	}
	if !handle.Exists() {
		return ""
	}
	return handle.String()
}

// toRemoteObject V8 镜像转为 RemoteObject
func toRemoteObject(mirror gjson.Result) *protocol.RemoteObject {
	switch kind := mirror.Get("type").String(); kind {
	case "undefined":
		return &protocol.RemoteObject{Type: "undefined", Description: "undefined"}
	case "null":
		return &protocol.RemoteObject{Type: "object", Subtype: "null", Description: "null"}
	case "boolean", "number", "string":
		return &protocol.RemoteObject{
			Type:        kind,
			Value:       mirror.Get("value").Value(),
			Description: mirror.Get("text").String(),
		}
	case "function":
		description := mirror.Get("source").String()
		if description == "" {
			description = "function " + mirror.Get("name").String() + "()"
		}
		return &protocol.RemoteObject{
			Type:        "function",
			ClassName:   "Function",
			Description: description,
			ObjectID:    objectID(mirror),
		}
	case "regexp":
		return &protocol.RemoteObject{
			Type:        "object",
			Subtype:     "regexp",
			ClassName:   "RegExp",
			Description: mirror.Get("text").String(),
			ObjectID:    objectID(mirror),
		}
	case "error":
		return &protocol.RemoteObject{
			Type:        "object",
			Subtype:     "error",
			ClassName:   mirror.Get("className").String(),
			Description: mirror.Get("text").String(),
			ObjectID:    objectID(mirror),
		}
	default:
		className := mirror.Get("className").String()
		object := &protocol.RemoteObject{
			Type:        "object",
			ClassName:   className,
			Description: className,
			ObjectID:    objectID(mirror),
		}
		switch className {
		case "Array":
			object.Subtype = "array"
		case "Date":
			object.Subtype = "date"
			object.Description = mirror.Get("value").String()
		}
		if object.Description == "" {
			object.Description = mirror.Get("text").String()
		}
		return object
	}
}

// toProperties V8 对象镜像的属性转为 PropertyDescriptor
func toProperties(mirror gjson.Result, refs refTable) []protocol.PropertyDescriptor {
	properties := make([]protocol.PropertyDescriptor, 0)
	mirror.Get("properties").ForEach(func(_, property gjson.Result) bool {
		attributes := property.Get("attributes").Int()
		properties = append(properties, protocol.PropertyDescriptor{
			Name:         property.Get("name").String(),
			Value:        toRemoteObject(refs.resolve(property)),
			Writable:     attributes&attributeReadOnly == 0,
			Enumerable:   attributes&attributeDontEnum == 0,
			Configurable: attributes&attributeDontDelete == 0,
			IsOwn:        true,
		})
		return true
	})
	for _, internal := range []string{"protoObject", "constructorFunction"} {
		value := mirror.Get(internal)
		if !value.Exists() {
			continue
		}
		name := "__proto__"
		if internal == "constructorFunction" {
			name = "constructor"
		}
		properties = append(properties, protocol.PropertyDescriptor{
			Name:  name,
			Value: toRemoteObject(refs.resolve(value)),
		})
	}
	return properties
}

// toScriptParsed V8 脚本描述转为 Debugger.scriptParsed 参数
func toScriptParsed(script gjson.Result) *protocol.ScriptParsed {
	lineOffset := int(script.Get("lineOffset").Int())
	lineCount := int(script.Get("lineCount").Int())
	endLine := lineOffset
	if lineCount > 0 {
		endLine = lineOffset + lineCount - 1
	}
	return &protocol.ScriptParsed{
		ScriptID:    strconv.FormatInt(script.Get("id").Int(), 10),
		URL:         script.Get("name").String(),
		StartLine:   lineOffset,
		StartColumn: int(script.Get("columnOffset").Int()),
		EndLine:     endLine,
	}
}

// toCallFrames backtrace 响应转为调用帧，帧的 id 即帧序号
func toCallFrames(body json.RawMessage, refs refTable) []protocol.CallFrame {
	frames := make([]protocol.CallFrame, 0)
	gjson.GetBytes(body, "frames").ForEach(func(_, frame gjson.Result) bool {
		fn := refs.resolve(frame.Get("func"))
		name := fn.Get("name").String()
		if name == "" {
			name = fn.Get("inferredName").String()
		}
		scriptID := fn.Get("scriptId")
		if !scriptID.Exists() {
			scriptID = refs.resolve(frame.Get("script")).Get("id")
		}
		callFrame := protocol.CallFrame{
			CallFrameID:  strconv.FormatInt(frame.Get("index").Int(), 10),
			FunctionName: name,
			Location: protocol.Location{
				ScriptID:     scriptID.String(),
				LineNumber:   int(frame.Get("line").Int()),
				ColumnNumber: int(frame.Get("column").Int()),
			},
		}
		if receiver := frame.Get("receiver"); receiver.Exists() {
			callFrame.This = toRemoteObject(refs.resolve(receiver))
		}
		frames = append(frames, callFrame)
		return true
	})
	return frames
}
