package protocol

import "github.com/fansqz/inspector-bridge/constants"

// Event 推送给前端的事件 {type:"event", method, params}
type Event struct {
	Type   constants.MessageType `json:"type"`
	Method string                `json:"method"`
	Params interface{}           `json:"params,omitempty"`
}

func NewEvent(method string, params interface{}) *Event {
	return &Event{
		Type:   constants.EventMessage,
		Method: method,
		Params: params,
	}
}

// ConsoleMessage Console.messageAdded 中的消息
type ConsoleMessage struct {
	Source string             `json:"source"`
	Level  constants.LogLevel `json:"level"`
	Text   string             `json:"text"`
	Type   string             `json:"type,omitempty"`
	URL    string             `json:"url,omitempty"`
	Line   int                `json:"line,omitempty"`
}

// ExecutionContext Runtime.executionContextCreated 中的执行上下文
type ExecutionContext struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Origin        string `json:"origin"`
	IsPageContext bool   `json:"isPageContext"`
	FrameID       string `json:"frameId"`
}

// RemoteObject 前端可见的对象描述
type RemoteObject struct {
	Type        string      `json:"type"`
	Subtype     string      `json:"subtype,omitempty"`
	ClassName   string      `json:"className,omitempty"`
	Description string      `json:"description,omitempty"`
	ObjectID    string      `json:"objectId,omitempty"`
	Value       interface{} `json:"value,omitempty"`
}

// PropertyDescriptor Runtime.getProperties 的返回项
type PropertyDescriptor struct {
	Name         string        `json:"name"`
	Value        *RemoteObject `json:"value,omitempty"`
	Writable     bool          `json:"writable"`
	Configurable bool          `json:"configurable"`
	Enumerable   bool          `json:"enumerable"`
	IsOwn        bool          `json:"isOwn"`
}

// Location 脚本中的位置
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// CallFrame Debugger.paused 中的调用帧
type CallFrame struct {
	CallFrameID  string        `json:"callFrameId"`
	FunctionName string        `json:"functionName"`
	Location     Location      `json:"location"`
	This         *RemoteObject `json:"this,omitempty"`
}

// ScriptParsed Debugger.scriptParsed 事件参数
type ScriptParsed struct {
	ScriptID     string `json:"scriptId"`
	URL          string `json:"url"`
	StartLine    int    `json:"startLine"`
	StartColumn  int    `json:"startColumn"`
	EndLine      int    `json:"endLine"`
	EndColumn    int    `json:"endColumn"`
	IsContentScr bool   `json:"isContentScript"`
}
