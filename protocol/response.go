package protocol

import "encoding/json"

// Response 返回给前端的响应 {id, success, result}
type Response struct {
	ID      int            `json:"id"`
	Success bool           `json:"success"`
	Result  interface{}    `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

// ResponseError 失败响应的错误信息
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServerErrorCode Inspector 协议约定的服务端错误码
const ServerErrorCode = -32000

// NewResponse 成功响应，result 为空时返回 {}
func NewResponse(id int, result interface{}) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{
		ID:      id,
		Success: true,
		Result:  result,
	}
}

// NewErrorResponse 失败响应
func NewErrorResponse(id int, err error) *Response {
	return &Response{
		ID:      id,
		Success: false,
		Error: &ResponseError{
			Code:    ServerErrorCode,
			Message: err.Error(),
		},
	}
}

// DebuggerMessage 调试进程发来的消息，响应和事件共用一个结构
// success 缺失时视为成功
type DebuggerMessage struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq *int            `json:"request_seq,omitempty"`
	Command    string          `json:"command,omitempty"`
	Success    *bool           `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Running    bool            `json:"running,omitempty"`
	Event      string          `json:"event,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Refs       json.RawMessage `json:"refs,omitempty"`
}

// IsSuccess 响应是否成功
func (m *DebuggerMessage) IsSuccess() bool {
	return m.Success == nil || *m.Success
}
