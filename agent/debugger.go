package agent

import (
	"encoding/json"
	"fmt"
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"strconv"
)

const (
	// scriptTypeNormal V8 scripts 命令中普通脚本的类型掩码
	scriptTypeNormal = 4
	// maxCallFrames Debugger.paused 中最多的调用帧数
	maxCallFrames = 50
)

type setBreakpointByURLParams struct {
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
	Condition    string `json:"condition"`
}

type setBreakpointResult struct {
	BreakpointID string              `json:"breakpointId"`
	Locations    []protocol.Location `json:"locations"`
}

type removeBreakpointParams struct {
	BreakpointID string `json:"breakpointId"`
}

type getScriptSourceParams struct {
	ScriptID string `json:"scriptId"`
}

type getScriptSourceResult struct {
	ScriptSource string `json:"scriptSource"`
}

type setPauseOnExceptionsParams struct {
	State string `json:"state"`
}

type pausedEvent struct {
	CallFrames     []protocol.CallFrame   `json:"callFrames"`
	Reason         string                 `json:"reason"`
	Data           *protocol.RemoteObject `json:"data,omitempty"`
	HitBreakpoints []string               `json:"hitBreakpoints,omitempty"`
}

// NewDebugger Debugger 域，直接使用 V8 调试协议，不依赖注入
func NewDebugger(debugger Debugger, frontend Frontend, groups *ObjectGroups) *Agent {
	a := NewAgent(constants.DomainDebugger, debugger, frontend, nil)

	a.OnEnable(func() {
		args := &protocol.ScriptsArguments{Types: scriptTypeNormal}
		a.send(constants.CommandScripts, args, func(resp *protocol.DebuggerMessage) {
			gjson.ParseBytes(resp.Body).ForEach(func(_, script gjson.Result) bool {
				frontend.Emit("Debugger.scriptParsed", toScriptParsed(script))
				return true
			})
		}, func(_ interface{}, err error) {
			if err != nil {
				logrus.Warnf("[Debugger] list scripts fail, err = %v", err)
			}
		})
	})

	a.Register("pause", func(params json.RawMessage, reply Reply) {
		a.send(constants.CommandSuspend, nil, func(resp *protocol.DebuggerMessage) {
			reply(nil, nil)
			paused(a, "other", nil, nil)
		}, reply)
	})
	a.Register("resume", resume(a, nil))
	a.Register("stepOver", resume(a, &protocol.ContinueArguments{StepAction: constants.StepNext, StepCount: 1}))
	a.Register("stepInto", resume(a, &protocol.ContinueArguments{StepAction: constants.StepIn, StepCount: 1}))
	a.Register("stepOut", resume(a, &protocol.ContinueArguments{StepAction: constants.StepOut, StepCount: 1}))

	a.Register("setBreakpointByUrl", func(params json.RawMessage, reply Reply) {
		var p setBreakpointByURLParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		args := &protocol.SetBreakpointArguments{
			Type:      "script",
			Target:    p.URL,
			Line:      p.LineNumber,
			Column:    p.ColumnNumber,
			Condition: p.Condition,
			Enabled:   true,
		}
		a.send(constants.CommandSetBreakpoint, args, func(resp *protocol.DebuggerMessage) {
			body := gjson.ParseBytes(resp.Body)
			result := &setBreakpointResult{
				BreakpointID: body.Get("breakpoint").String(),
				Locations:    make([]protocol.Location, 0),
			}
			body.Get("actual_locations").ForEach(func(_, location gjson.Result) bool {
				result.Locations = append(result.Locations, protocol.Location{
					ScriptID:     location.Get("script_id").String(),
					LineNumber:   int(location.Get("line").Int()),
					ColumnNumber: int(location.Get("column").Int()),
				})
				return true
			})
			reply(result, nil)
		}, reply)
	})

	a.Register("removeBreakpoint", func(params json.RawMessage, reply Reply) {
		var p removeBreakpointParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		breakpoint, err := strconv.Atoi(p.BreakpointID)
		if err != nil {
			reply(nil, fmt.Errorf("invalid breakpointId %q", p.BreakpointID))
			return
		}
		args := &protocol.ClearBreakpointArguments{Breakpoint: breakpoint}
		a.send(constants.CommandClearBreakpoint, args, func(resp *protocol.DebuggerMessage) {
			reply(nil, nil)
		}, reply)
	})

	a.Register("getScriptSource", func(params json.RawMessage, reply Reply) {
		var p getScriptSourceParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		id, err := strconv.Atoi(p.ScriptID)
		if err != nil {
			reply(nil, fmt.Errorf("invalid scriptId %q", p.ScriptID))
			return
		}
		args := &protocol.ScriptsArguments{Types: scriptTypeNormal, IDs: []int{id}, IncludeSource: true}
		a.send(constants.CommandScripts, args, func(resp *protocol.DebuggerMessage) {
			reply(&getScriptSourceResult{ScriptSource: gjson.GetBytes(resp.Body, "0.source").String()}, nil)
		}, reply)
	})

	a.Register("setPauseOnExceptions", func(params json.RawMessage, reply Reply) {
		var p setPauseOnExceptionsParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		// none 时关闭两种异常断点
		args := []*protocol.ExceptionBreakArguments{
			{Type: "all", Enabled: p.State == "all"},
			{Type: "uncaught", Enabled: p.State == "all" || p.State == "uncaught"},
		}
		a.send(constants.CommandExceptionBreak, args[0], func(*protocol.DebuggerMessage) {
			a.send(constants.CommandExceptionBreak, args[1], func(*protocol.DebuggerMessage) {
				reply(nil, nil)
			}, reply)
		}, reply)
	})

	a.Register("evaluateOnCallFrame", func(params json.RawMessage, reply Reply) {
		var p evaluateParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		frame, err := strconv.Atoi(p.CallFrameID)
		if err != nil {
			reply(nil, fmt.Errorf("invalid callFrameId %q", p.CallFrameID))
			return
		}
		evaluate(a, groups, p, &frame, reply)
	})

	debugger.On(constants.EventBreak, func(event *protocol.DebuggerMessage) {
		var hit []string
		gjson.GetBytes(event.Body, "breakpoints").ForEach(func(_, id gjson.Result) bool {
			hit = append(hit, id.String())
			return true
		})
		paused(a, "other", nil, hit)
	})
	debugger.On(constants.EventException, func(event *protocol.DebuggerMessage) {
		exception := newRefTable(event.Refs).resolve(gjson.GetBytes(event.Body, "exception"))
		paused(a, "exception", toRemoteObject(exception), nil)
	})
	debugger.On(constants.EventAfterCompile, func(event *protocol.DebuggerMessage) {
		script := gjson.GetBytes(event.Body, "script")
		if !script.Exists() {
			return
		}
		frontend.Emit("Debugger.scriptParsed", toScriptParsed(script))
	})
	return a
}

// resume 继续执行，args 为空时直接继续，成功后通知前端
func resume(a *Agent, args *protocol.ContinueArguments) Handler {
	return func(params json.RawMessage, reply Reply) {
		var arguments interface{}
		if args != nil {
			arguments = args
		}
		a.send(constants.CommandContinue, arguments, func(resp *protocol.DebuggerMessage) {
			reply(nil, nil)
			a.frontend.Emit("Debugger.resumed", nil)
		}, reply)
	}
}

// paused 获取调用栈后发出 Debugger.paused
func paused(a *Agent, reason string, data *protocol.RemoteObject, hitBreakpoints []string) {
	args := &protocol.BacktraceArguments{ToFrame: maxCallFrames, Inline: true}
	a.send(constants.CommandBacktrace, args, func(resp *protocol.DebuggerMessage) {
		a.frontend.Emit("Debugger.paused", &pausedEvent{
			CallFrames:     toCallFrames(resp.Body, newRefTable(resp.Refs)),
			Reason:         reason,
			Data:           data,
			HitBreakpoints: hitBreakpoints,
		})
	}, func(_ interface{}, err error) {
		if err != nil {
			logrus.Warnf("[Debugger] backtrace fail, err = %v", err)
		}
	})
}
