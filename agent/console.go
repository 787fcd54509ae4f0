package agent

import (
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/injection"
)

// NewConsole Console 域，enable 之前的消息不会补发
func NewConsole(debugger Debugger, frontend Frontend, manager *injection.Manager) *Agent {
	a := NewAgent(constants.DomainConsole, debugger, frontend, manager.Inject(injection.KeyConsole))
	a.TranslateCommandToInjection("clearMessages")
	a.TranslateEventToFrontend("messageAdded", "messageRepeatCountUpdated", "messagesCleared")
	return a
}
