// Package agent 将 Inspector 协议各个域的命令翻译为调试请求，并把调试事件转发给前端
package agent

import (
	"encoding/json"
	"fmt"
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/sirupsen/logrus"
	"sort"
	"sync"
)

// Debugger 到被调试进程的通道
type Debugger interface {
	Send(command string, args interface{}, handler transport.ResponseHandler) (int, error)
	On(event string, listener transport.EventListener)
}

// Frontend 所有已连接的前端
type Frontend interface {
	// Emit 向前端发送事件
	Emit(method string, params interface{})
	// Log 以控制台消息的形式输出诊断信息
	Log(level constants.LogLevel, text string)
}

// Reply 命令的结果，每个命令调用一次
type Reply func(result interface{}, err error)

// Handler 处理一个前端命令
type Handler func(params json.RawMessage, reply Reply)

// Agent 一个域的翻译器
type Agent struct {
	domain    constants.Domain
	debugger  Debugger
	frontend  Frontend
	injection *injection.Injection

	mu       sync.RWMutex
	handlers map[string]Handler
	onEnable []func()
}

// NewAgent inj 为空表示该域不依赖注入
// enable 和 disable 默认直接成功
func NewAgent(domain constants.Domain, debugger Debugger, frontend Frontend, inj *injection.Injection) *Agent {
	a := &Agent{
		domain:    domain,
		debugger:  debugger,
		frontend:  frontend,
		injection: inj,
		handlers:  make(map[string]Handler),
	}
	a.Register("enable", a.enable)
	a.Register("disable", func(params json.RawMessage, reply Reply) { reply(nil, nil) })
	return a
}

func (a *Agent) Domain() constants.Domain {
	return a.domain
}

// Injected 该域依赖的注入是否成功，不依赖注入时为 true
func (a *Agent) Injected() bool {
	return a.injection == nil || a.injection.Injected()
}

// Register 注册一个命令，name 不带域名
func (a *Agent) Register(name string, handler Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = handler
}

// OnEnable enable 回复之后调用，用于补发前端握手需要的事件
func (a *Agent) OnEnable(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnable = append(a.onEnable, fn)
}

// Commands 已注册的命令，带域名
func (a *Agent) Commands() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	commands := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		commands = append(commands, a.method(name))
	}
	sort.Strings(commands)
	return commands
}

// Handle 处理命令，name 不带域名，未注册时返回 false
func (a *Agent) Handle(name string, params json.RawMessage, reply Reply) bool {
	a.mu.RLock()
	handler, ok := a.handlers[name]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	handler(params, reply)
	return true
}

// TranslateCommandToInjection 对每个 name 注册一个命令，转发为调试请求 <Domain>.<name>
// 注入完成前的命令按顺序排队，注入失败时逐个以 ErrNotInjected 拒绝
func (a *Agent) TranslateCommandToInjection(names ...string) {
	for _, name := range names {
		command := a.method(name)
		if a.injection != nil {
			if b := a.injection.Bootstrap(); b != nil && !b.Provides(command) {
				logrus.Warnf("[Agent] %s is not provided by bootstrap %s", command, b.Key)
			}
		}
		a.Register(name, a.injectedCommand(command))
	}
}

// injectedCommand 等待注入完成后转发 command
func (a *Agent) injectedCommand(command string) Handler {
	return func(params json.RawMessage, reply Reply) {
		a.whenInjected(func(err error) {
			if err != nil {
				reply(nil, err)
				return
			}
			a.forward(command, params, reply)
		})
	}
}

// TranslateEventToFrontend 对每个 name 订阅调试事件 <Domain>.<name>，原样转发给前端
func (a *Agent) TranslateEventToFrontend(names ...string) {
	for _, name := range names {
		method := a.method(name)
		a.debugger.On(method, func(event *protocol.DebuggerMessage) {
			var params interface{}
			if len(event.Body) > 0 {
				params = event.Body
			}
			a.frontend.Emit(method, params)
		})
	}
}

func (a *Agent) enable(params json.RawMessage, reply Reply) {
	reply(nil, nil)
	a.mu.RLock()
	hooks := append([]func(){}, a.onEnable...)
	a.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (a *Agent) whenInjected(fn func(err error)) {
	if a.injection == nil {
		fn(nil)
		return
	}
	a.injection.WhenSettled(fn)
}

// forward 发送调试请求，以响应体回复
func (a *Agent) forward(command string, params json.RawMessage, reply Reply) {
	var args interface{}
	if len(params) > 0 && string(params) != "null" {
		args = params
	}
	a.send(command, args, func(resp *protocol.DebuggerMessage) {
		var result interface{}
		if len(resp.Body) > 0 {
			result = resp.Body
		}
		reply(result, nil)
	}, reply)
}

// send 发送调试请求，失败的响应和发送错误都通过 reply 返回
func (a *Agent) send(command string, args interface{}, onSuccess transport.ResponseHandler, reply Reply) {
	_, err := a.debugger.Send(command, args, func(resp *protocol.DebuggerMessage) {
		if err := transport.AsError(resp); err != nil {
			reply(nil, err)
			return
		}
		onSuccess(resp)
	})
	if err != nil {
		reply(nil, fmt.Errorf("send %s: %w", command, err))
	}
}

func (a *Agent) method(name string) string {
	return string(a.domain) + "." + name
}

// decodeParams 解析命令参数，参数为空时保留零值
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
