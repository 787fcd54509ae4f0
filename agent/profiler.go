package agent

import (
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/injection"
)

// NewProfiler Profiler 域，命令和事件都由注入的程序提供
func NewProfiler(debugger Debugger, frontend Frontend, manager *injection.Manager) *Agent {
	a := NewAgent(constants.DomainProfiler, debugger, frontend, manager.Inject(injection.KeyProfiler))
	a.TranslateCommandToInjection("start", "stop", "setSamplingInterval")
	a.TranslateEventToFrontend("consoleProfileStarted", "consoleProfileFinished")
	return a
}
