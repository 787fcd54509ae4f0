package constants

// MessageType 前端与调试进程之间消息的类型
type MessageType string

const (
	RequestMessage  MessageType = "request"
	ResponseMessage MessageType = "response"
	EventMessage    MessageType = "event"
)

// Domain Inspector协议的域
type Domain string

const (
	DomainRuntime      Domain = "Runtime"
	DomainDebugger     Domain = "Debugger"
	DomainProfiler     Domain = "Profiler"
	DomainHeapProfiler Domain = "HeapProfiler"
	DomainConsole      Domain = "Console"
)

// V8 调试协议的命令
const (
	CommandContinue        = "continue"
	CommandSuspend         = "suspend"
	CommandEvaluate        = "evaluate"
	CommandLookup          = "lookup"
	CommandBacktrace       = "backtrace"
	CommandScripts         = "scripts"
	CommandSetBreakpoint   = "setbreakpoint"
	CommandClearBreakpoint = "clearbreakpoint"
	CommandExceptionBreak  = "setexceptionbreak"
)

// V8 调试协议的事件
const (
	EventBreak        = "break"
	EventException    = "exception"
	EventAfterCompile = "afterCompile"
	// EventConnect 调试进程连接时发出的 Type: connect 头
	EventConnect = "connect"
	// EventClose 调试进程的流结束
	EventClose = "close"
)

// StepAction continue 命令的单步类型
type StepAction string

const (
	StepNext StepAction = "next"
	StepIn   StepAction = "in"
	StepOut  StepAction = "out"
)

// LogLevel Console.messageAdded 的级别
type LogLevel string

const (
	LogLevelLog     LogLevel = "log"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelDebug   LogLevel = "debug"
)
