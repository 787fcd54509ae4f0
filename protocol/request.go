package protocol

import (
	"encoding/json"
	"github.com/fansqz/inspector-bridge/constants"
)

// Command 前端发来的命令 {id, method, params}
type Command struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DebuggerRequest 发送给调试进程的请求
// Content-Length 封装由 transport 负责
type DebuggerRequest struct {
	Seq       int                   `json:"seq"`
	Type      constants.MessageType `json:"type"`
	Command   string                `json:"command"`
	Arguments interface{}           `json:"arguments,omitempty"`
}

// EvaluateArguments V8 evaluate 命令的参数
type EvaluateArguments struct {
	Expression    string `json:"expression"`
	Global        bool   `json:"global,omitempty"`
	Frame         *int   `json:"frame,omitempty"`
	DisableBreak  bool   `json:"disable_break,omitempty"`
	MaxStringSize int    `json:"maxStringLength,omitempty"`
}

// LookupArguments V8 lookup 命令的参数
type LookupArguments struct {
	Handles       []int `json:"handles"`
	IncludeSource bool  `json:"includeSource"`
}

// ContinueArguments V8 continue 命令的参数，单步时才需要
type ContinueArguments struct {
	StepAction constants.StepAction `json:"stepaction"`
	StepCount  int                  `json:"stepcount,omitempty"`
}

// SetBreakpointArguments V8 setbreakpoint 命令的参数
type SetBreakpointArguments struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	Condition string `json:"condition,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// ClearBreakpointArguments V8 clearbreakpoint 命令的参数
type ClearBreakpointArguments struct {
	Breakpoint int `json:"breakpoint"`
}

// ScriptsArguments V8 scripts 命令的参数
type ScriptsArguments struct {
	Types         int   `json:"types,omitempty"`
	IDs           []int `json:"ids,omitempty"`
	IncludeSource bool  `json:"includeSource"`
}

// BacktraceArguments V8 backtrace 命令的参数
type BacktraceArguments struct {
	FromFrame int  `json:"fromFrame"`
	ToFrame   int  `json:"toFrame"`
	Inline    bool `json:"inlineRefs"`
}

// ExceptionBreakArguments V8 setexceptionbreak 命令的参数，type 为 all 或 uncaught
type ExceptionBreakArguments struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}
