package agent

import (
	"encoding/json"
	"fmt"
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/heapid"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/tidwall/gjson"
	"strconv"
)

const (
	// ContextID 唯一的执行上下文
	ContextID = 1
	// MainFrameID 执行上下文所属的帧
	MainFrameID = "main"
	// maxStringLength evaluate 返回字符串的最大长度
	maxStringLength = 10000
)

type evaluateParams struct {
	Expression    string `json:"expression"`
	ObjectGroup   string `json:"objectGroup"`
	ReturnByValue bool   `json:"returnByValue"`
	CallFrameID   string `json:"callFrameId"`
}

type evaluateResult struct {
	Result    *protocol.RemoteObject `json:"result"`
	WasThrown bool                   `json:"wasThrown"`
}

type getPropertiesParams struct {
	ObjectID      string `json:"objectId"`
	ObjectGroup   string `json:"objectGroup"`
	OwnProperties bool   `json:"ownProperties"`
}

type getPropertiesResult struct {
	Result []protocol.PropertyDescriptor `json:"result"`
}

type releaseObjectGroupParams struct {
	ObjectGroup string `json:"objectGroup"`
}

// NewRuntime Runtime 域
func NewRuntime(debugger Debugger, frontend Frontend, manager *injection.Manager, groups *ObjectGroups) *Agent {
	a := NewAgent(constants.DomainRuntime, debugger, frontend, manager.Inject(injection.KeyRuntime))
	heap := manager.Inject(injection.KeyHeapProfiler)

	a.OnEnable(func() {
		frontend.Emit("Runtime.executionContextCreated", map[string]interface{}{
			"context": &protocol.ExecutionContext{
				ID:            ContextID,
				Name:          "node",
				IsPageContext: true,
				FrameID:       MainFrameID,
			},
		})
	})

	a.Register("evaluate", func(params json.RawMessage, reply Reply) {
		var p evaluateParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		evaluate(a, groups, p, nil, reply)
	})

	a.Register("getProperties", func(params json.RawMessage, reply Reply) {
		var p getPropertiesParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		if heapid.IsHeapObjectID(p.ObjectID) {
			heap.WhenSettled(func(err error) {
				if err != nil {
					reply(nil, err)
					return
				}
				heapid.Lookup(debugger, p.ObjectID, p.ObjectGroup, func(err error, body json.RawMessage, refs json.RawMessage) {
					if err != nil {
						reply(nil, err)
						return
					}
					groups.Acquire(p.ObjectGroup)
					reply(&getPropertiesResult{Result: toProperties(gjson.ParseBytes(body), newRefTable(refs))}, nil)
				})
			})
			return
		}
		handle, err := strconv.Atoi(p.ObjectID)
		if err != nil {
			reply(nil, fmt.Errorf("invalid objectId %q", p.ObjectID))
			return
		}
		args := &protocol.LookupArguments{Handles: []int{handle}}
		a.send(constants.CommandLookup, args, func(resp *protocol.DebuggerMessage) {
			mirror := gjson.GetBytes(resp.Body, strconv.Itoa(handle))
			reply(&getPropertiesResult{Result: toProperties(mirror, newRefTable(resp.Refs))}, nil)
		}, reply)
	})

	a.TranslateCommandToInjection("releaseObject")
	release := a.injectedCommand("Runtime.releaseObjectGroup")
	a.Register("releaseObjectGroup", func(params json.RawMessage, reply Reply) {
		var p releaseObjectGroupParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		if err := groups.Release(p.ObjectGroup, "Runtime.releaseObjectGroup"); err != nil {
			frontend.Log(constants.LogLevelDebug, err.Error())
			reply(nil, nil)
			return
		}
		release(params, reply)
	})
	return a
}

// evaluate 在全局或 frame 指定的调用帧中求值
// 调试进程返回的失败作为 wasThrown 结果返回，发送失败通过 reply 返回
func evaluate(a *Agent, groups *ObjectGroups, p evaluateParams, frame *int, reply Reply) {
	args := &protocol.EvaluateArguments{
		Expression:    p.Expression,
		Global:        frame == nil,
		Frame:         frame,
		DisableBreak:  true,
		MaxStringSize: maxStringLength,
	}
	_, err := a.debugger.Send(constants.CommandEvaluate, args, func(resp *protocol.DebuggerMessage) {
		if !resp.IsSuccess() {
			reply(&evaluateResult{
				Result: &protocol.RemoteObject{
					Type:        "object",
					Subtype:     "error",
					ClassName:   "Error",
					Description: resp.Message,
				},
				WasThrown: true,
			}, nil)
			return
		}
		result := toRemoteObject(gjson.ParseBytes(resp.Body))
		if result.ObjectID != "" {
			groups.Acquire(p.ObjectGroup)
		}
		reply(&evaluateResult{Result: result}, nil)
	})
	if err != nil {
		reply(nil, fmt.Errorf("send %s: %w", constants.CommandEvaluate, err))
	}
}
