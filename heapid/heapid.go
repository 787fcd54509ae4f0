// Package heapid 将堆快照对象的句柄转换为 heap:<handle> 形式的外部 id，
// 避免与其他来源的对象 id 冲突
package heapid

import (
	"encoding/json"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"regexp"
	"strconv"
	"strings"
)

const prefix = "heap:"

// LookupCommand 注入后由调试进程提供的堆对象查询命令
const LookupCommand = "HeapProfiler._lookupHeapObjectId"

var heapObjectIDPattern = regexp.MustCompile(`^heap:(\d+)$`)

// handleFields 携带对象句柄的字段
var handleFields = map[string]bool{
	"handle": true,
	"ref":    true,
}

// Requester 发送调试请求
type Requester interface {
	Send(command string, args interface{}, handler transport.ResponseHandler) (int, error)
}

// LookupCallback 查询结果，body 和 refs 中的句柄已转换为外部 id
type LookupCallback func(err error, body json.RawMessage, refs json.RawMessage)

// IsHeapObjectID id 是否为 heap:<数字>
func IsHeapObjectID(id string) bool {
	return heapObjectIDPattern.MatchString(id)
}

// Parse 取出外部 id 中的句柄
func Parse(id string) (int, error) {
	match := heapObjectIDPattern.FindStringSubmatch(id)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", e.ErrInvalidHeapObjectId, id)
	}
	handle, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", e.ErrInvalidHeapObjectId, id)
	}
	return handle, nil
}

// Format 句柄转为外部 id
func Format(handle int) string {
	return prefix + strconv.Itoa(handle)
}

// Lookup 查询外部 id 对应的对象，返回前转换响应中所有的句柄
// objectGroup 非空时调试进程把对象缓存在该分组下
func Lookup(requester Requester, externalID string, objectGroup string, done LookupCallback) {
	handle, err := Parse(externalID)
	if err != nil {
		done(err, nil, nil)
		return
	}
	args := map[string]interface{}{"objectId": strconv.Itoa(handle)}
	if objectGroup != "" {
		args["objectGroup"] = objectGroup
	}
	_, err = requester.Send(LookupCommand, args, func(resp *protocol.DebuggerMessage) {
		if err := transport.AsError(resp); err != nil {
			done(err, nil, nil)
			return
		}
		body, err := RewriteHandles(resp.Body)
		if err != nil {
			done(err, nil, nil)
			return
		}
		refs, err := RewriteHandles(resp.Refs)
		if err != nil {
			done(err, nil, nil)
			return
		}
		done(nil, body, refs)
	})
	if err != nil {
		done(err, nil, nil)
	}
}

// RewriteHandles 递归地把 handle/ref 字段中的数字句柄改写为 heap:<handle>
func RewriteHandles(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("rewrite heap handles: invalid json")
	}
	root := gjson.ParseBytes(raw)
	if hasEmptyKey(root) {
		return json.RawMessage(rebuild(root)), nil
	}
	var edits []edit
	collect(root, "", &edits)

	out := []byte(raw)
	var err error
	for _, ed := range edits {
		if ed.raw {
			out, err = sjson.SetRawBytes(out, ed.path, []byte(ed.value))
		} else {
			out, err = sjson.SetBytes(out, ed.path, ed.value)
		}
		if err != nil {
			return nil, fmt.Errorf("rewrite heap handle %s: %w", ed.path, err)
		}
	}
	return out, nil
}

type edit struct {
	path  string
	value string
	raw   bool
}

func collect(node gjson.Result, path string, edits *[]edit) {
	if !node.IsObject() && !node.IsArray() {
		return
	}
	isArray := node.IsArray()
	index := 0
	node.ForEach(func(key, value gjson.Result) bool {
		var child string
		if isArray {
			child = join(path, strconv.Itoa(index))
			index++
		} else {
			child = join(path, escape(key.String()))
			if handleFields[key.String()] && isHandle(value) {
				*edits = append(*edits, edit{path: child, value: prefix + value.Raw})
				return true
			}
		}
		// 空键无法用路径表示，整体重建该值
		if hasEmptyKey(value) {
			*edits = append(*edits, edit{path: child, value: rebuild(value), raw: true})
			return true
		}
		collect(value, child, edits)
		return true
	})
}

func hasEmptyKey(node gjson.Result) bool {
	if !node.IsObject() {
		return false
	}
	found := false
	node.ForEach(func(key, _ gjson.Result) bool {
		found = key.String() == ""
		return !found
	})
	return found
}

// rebuild 重新拼出 node 的 JSON 文本，同时改写其中的句柄
func rebuild(node gjson.Result) string {
	switch {
	case node.IsObject():
		var b strings.Builder
		b.WriteByte('{')
		first := true
		node.ForEach(func(key, value gjson.Result) bool {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(quote(key.String()))
			b.WriteByte(':')
			if handleFields[key.String()] && isHandle(value) {
				b.WriteString(quote(prefix + value.Raw))
			} else {
				b.WriteString(rebuild(value))
			}
			return true
		})
		b.WriteByte('}')
		return b.String()
	case node.IsArray():
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range node.Array() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(rebuild(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return node.Raw
	}
}

func quote(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func isHandle(value gjson.Result) bool {
	if value.Type != gjson.Number || value.Raw == "" {
		return false
	}
	for _, c := range value.Raw {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, "!", `\!`,
)

// escape 转义 gjson/sjson 路径中的特殊字符
func escape(key string) string {
	return pathEscaper.Replace(key)
}
