package error

import "errors"

var (
	// 前端帧
	ErrHighOrderFrame = errors.New("High Order packet handling is not yet implemented")
	ErrInvalidUTF8    = errors.New("frame payload is not valid utf-8")
	ErrCloseFrame     = errors.New("close frame received")
	ErrHandshake      = errors.New("websocket handshake failed")

	// 调试进程通道
	ErrMissingContentLength = errors.New("missing Content-Length header")
	ErrTransportClosed      = errors.New("debugger transport is closed")
	ErrDebuggeeDisconnected = errors.New("debuggee disconnected")

	// 注入
	ErrNotInjected           = errors.New("debugger extensions are not injected")
	ErrInjectionDisabled     = errors.New("injection is disabled")
	ErrInjectionTimeout      = errors.New("injection timed out")
	ErrUnknownBootstrap      = errors.New("unknown bootstrap program")
	ErrOptionNotSerializable = errors.New("injection option must be a string, number or boolean")

	// 前端命令
	ErrMethodNotFound      = errors.New("method not found")
	ErrInvalidHeapObjectId = errors.New("invalid heap object id")
	ErrReleaseUnbalanced   = errors.New("release without matching acquire")
)
