package agent

import (
	"encoding/json"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"strings"
)

// Dispatcher 按域名将前端命令交给对应的 Agent
type Dispatcher struct {
	agents map[string]*Agent
}

func NewDispatcher(agents ...*Agent) *Dispatcher {
	d := &Dispatcher{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		d.agents[string(a.Domain())] = a
	}
	return d
}

// Agent 返回域对应的 Agent
func (d *Dispatcher) Agent(domain string) (*Agent, bool) {
	a, ok := d.agents[domain]
	return a, ok
}

// Dispatch 处理形如 Domain.command 的方法
func (d *Dispatcher) Dispatch(method string, params json.RawMessage, reply Reply) {
	domain, name, found := strings.Cut(method, ".")
	if !found {
		reply(nil, fmt.Errorf("%w: %s", e.ErrMethodNotFound, method))
		return
	}
	a, ok := d.agents[domain]
	if !ok || !a.Handle(name, params, reply) {
		reply(nil, fmt.Errorf("%w: %s", e.ErrMethodNotFound, method))
	}
}
