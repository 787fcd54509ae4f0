package injection

import (
	"fmt"
	"github.com/eapache/queue"
	"github.com/fansqz/inspector-bridge/constants"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/fansqz/inspector-bridge/utils"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"sync"
	"time"
)

const (
	StatusPending  = "pending"
	StatusInjected = "injected"
	StatusFailed   = "failed"
)

// Requester 发送调试请求
type Requester interface {
	Send(command string, args interface{}, handler transport.ResponseHandler) (int, error)
}

// Reporter 向前端输出诊断信息
type Reporter interface {
	Log(level constants.LogLevel, text string)
}

// Config 注入配置
type Config struct {
	Enabled bool
	// Timeout 等待注入响应的时间，<=0 表示不限
	Timeout time.Duration
	// Options 合并到每个注入程序的选项中
	Options Options
}

// Manager 一个调试连接上的注入，每个 key 最多注入一次
// 重新连接时需要新建 Manager
type Manager struct {
	debugger Requester
	reporter Reporter
	config   Config

	mu         sync.Mutex
	injections map[string]*Injection
}

func NewManager(debugger Requester, reporter Reporter, config Config) *Manager {
	return &Manager{
		debugger:   debugger,
		reporter:   reporter,
		config:     config,
		injections: make(map[string]*Injection),
	}
}

// Inject 开始注入 key 对应的程序，已经开始过的直接返回之前的结果
func (m *Manager) Inject(key string) *Injection {
	m.mu.Lock()
	if inj, ok := m.injections[key]; ok {
		m.mu.Unlock()
		return inj
	}
	inj := newInjection(key, m.reporter)
	m.injections[key] = inj
	m.mu.Unlock()

	if !m.config.Enabled {
		inj.settle(e.ErrInjectionDisabled)
		return inj
	}
	b, err := Lookup(key)
	if err != nil {
		inj.settle(err)
		return inj
	}
	inj.bootstrap = b
	expression, err := b.Expression(m.config.Options)
	if err != nil {
		inj.settle(err)
		return inj
	}

	if m.config.Timeout > 0 {
		inj.timer.Start(m.config.Timeout, func() {
			inj.settle(fmt.Errorf("%w after %v", e.ErrInjectionTimeout, m.config.Timeout))
		})
	}
	logrus.Infof("[Injection] inject %s (version %d)", key, b.Version)
	logrus.Debugf("[Injection] %s provides %v", key, utils.Set2StringList(b.Commands))
	args := &protocol.EvaluateArguments{
		Expression:   expression,
		Global:       true,
		DisableBreak: true,
	}
	_, err = m.debugger.Send(constants.CommandEvaluate, args, func(resp *protocol.DebuggerMessage) {
		if err := transport.AsError(resp); err != nil {
			inj.settle(err)
			return
		}
		if !gjson.GetBytes(resp.Body, "value").Bool() {
			inj.settle(fmt.Errorf("bootstrap returned %s", string(resp.Body)))
			return
		}
		inj.settle(nil)
	})
	if err != nil {
		inj.settle(err)
	}
	return inj
}

// Get 返回 key 对应的注入，尚未开始时返回 nil
func (m *Manager) Get(key string) *Injection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.injections[key]
}

// Abort 以 err 结束所有未完成的注入，连接断开时调用
func (m *Manager) Abort(err error) {
	m.mu.Lock()
	injections := make([]*Injection, 0, len(m.injections))
	for _, inj := range m.injections {
		injections = append(injections, inj)
	}
	m.mu.Unlock()
	for _, inj := range injections {
		inj.settle(err)
	}
}

// Injection 一次注入的状态
// 结束前通过 WhenSettled 注册的回调按注册顺序排队，结束时依次调用
type Injection struct {
	key       string
	bootstrap *Bootstrap
	reporter  Reporter

	status *utils.StatusManager
	timer  *utils.TimeoutManager

	mu       sync.Mutex
	err      error
	waiters  *queue.Queue
	// draining 结束后仍在依次调用排队的回调，新的回调继续排队以保持顺序
	draining bool
}

func newInjection(key string, reporter Reporter) *Injection {
	return &Injection{
		key:      key,
		reporter: reporter,
		status:   utils.NewStatusManager(StatusPending),
		timer:    utils.NewTimeoutManager(),
		waiters:  queue.New(),
	}
}

func (i *Injection) Key() string {
	return i.key
}

// Bootstrap 注入的程序，key 未知时为 nil
func (i *Injection) Bootstrap() *Bootstrap {
	return i.bootstrap
}

// Injected 注入是否成功
func (i *Injection) Injected() bool {
	return i.status.Is(StatusInjected)
}

// Settled 注入是否已经有结果
func (i *Injection) Settled() bool {
	return !i.status.Is(StatusPending)
}

// Err 注入失败的原因，成功或未结束时为 nil
func (i *Injection) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// WhenSettled 注入有结果后调用 fn，已经有结果时立即调用
// 失败时 fn 收到的错误都包装了 ErrNotInjected
func (i *Injection) WhenSettled(fn func(err error)) {
	i.mu.Lock()
	if i.status.Is(StatusPending) || i.draining {
		i.waiters.Add(fn)
		i.mu.Unlock()
		return
	}
	err := i.err
	i.mu.Unlock()
	fn(err)
}

func (i *Injection) settle(cause error) {
	next := StatusInjected
	if cause != nil {
		next = StatusFailed
	}
	i.mu.Lock()
	if !i.status.CompareAndSet(StatusPending, next) {
		i.mu.Unlock()
		return
	}
	if cause != nil {
		i.err = fmt.Errorf("%w: %s: %w", e.ErrNotInjected, i.key, cause)
	}
	err := i.err
	i.draining = true
	i.mu.Unlock()
	i.timer.Cancel()

	if err != nil {
		logrus.Warnf("[Injection] inject %s fail, err = %v", i.key, cause)
		if i.reporter != nil {
			i.reporter.Log(constants.LogLevelError,
				fmt.Sprintf("Cannot install %s debugger extensions, related commands are unavailable: %v", i.key, cause))
		}
	} else {
		logrus.Infof("[Injection] inject %s success", i.key)
	}
	for {
		i.mu.Lock()
		if i.waiters.Length() == 0 {
			i.draining = false
			i.mu.Unlock()
			return
		}
		w := i.waiters.Remove().(func(error))
		i.mu.Unlock()
		w(err)
	}
}
