// Package bridge 连接前端与调试进程：接受前端的 WebSocket 连接，把命令交给各个 Agent，
// 再把响应和事件发回前端
package bridge

import (
	"context"
	"errors"
	"fmt"
	"github.com/fansqz/inspector-bridge/agent"
	"github.com/fansqz/inspector-bridge/constants"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/fansqz/inspector-bridge/registry"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/fansqz/inspector-bridge/utils"
	"github.com/fansqz/inspector-bridge/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"net"
	"sync"
	"time"
)

// handshakeTimeout 前端完成握手的时间
const handshakeTimeout = 10 * time.Second

// Bridge 一个调试进程与所有前端之间的桥
type Bridge struct {
	debugger   *transport.Transport
	registry   *registry.Registry
	manager    *injection.Manager
	groups     *agent.ObjectGroups
	dispatcher *agent.Dispatcher

	// diagnostics 错误级别的诊断，新连接的前端会先收到这些
	diagMu      sync.Mutex
	diagnostics []*protocol.Event

	sessions sync.WaitGroup
}

// New 在已连接的调试进程上创建各个 Agent，注入随之开始
func New(debugger *transport.Transport, config injection.Config) *Bridge {
	b := &Bridge{
		debugger: debugger,
		registry: registry.New(),
		groups:   agent.NewObjectGroups(),
	}
	b.manager = injection.NewManager(debugger, b, config)
	b.dispatcher = agent.NewDispatcher(
		agent.NewRuntime(debugger, b, b.manager, b.groups),
		agent.NewDebugger(debugger, b, b.groups),
		agent.NewProfiler(debugger, b, b.manager),
		agent.NewHeapProfiler(debugger, b, b.manager, b.groups),
		agent.NewConsole(debugger, b, b.manager),
	)
	debugger.On(constants.EventConnect, func(event *protocol.DebuggerMessage) {
		logrus.Infof("[Bridge] debugger connected, %s", string(event.Body))
	})
	debugger.On(constants.EventClose, func(event *protocol.DebuggerMessage) {
		b.manager.Abort(e.ErrDebuggeeDisconnected)
	})
	return b
}

// Emit 向所有前端广播事件
func (b *Bridge) Emit(method string, params interface{}) {
	b.registry.Broadcast(protocol.NewEvent(method, params))
}

// Log 诊断信息以 Console.messageAdded 发给所有前端
// 错误级别的诊断会保留下来，之后连接的前端也能收到
func (b *Bridge) Log(level constants.LogLevel, text string) {
	logrus.Infof("[Bridge] %s: %s", level, text)
	event := protocol.NewEvent("Console.messageAdded", map[string]interface{}{
		"message": &protocol.ConsoleMessage{
			Source: "other",
			Level:  level,
			Text:   text,
			Type:   "log",
		},
	})
	b.diagMu.Lock()
	defer b.diagMu.Unlock()
	if level == constants.LogLevelError {
		b.diagnostics = append(b.diagnostics, event)
	}
	b.registry.Broadcast(event)
}

// attach 登记新连接并补发已保留的诊断，与 Log 互斥，每条诊断只送达一次
func (b *Bridge) attach(s *session) {
	b.diagMu.Lock()
	defer b.diagMu.Unlock()
	b.registry.Attach(s.id, s)
	for _, event := range b.diagnostics {
		if err := s.Send(event); err != nil {
			logrus.Warnf("[Bridge] replay diagnostic to %s fail, err = %v", utils.GetShortID(s.id), err)
			return
		}
	}
}

// Clients 当前连接的前端数
func (b *Bridge) Clients() int {
	return b.registry.Len()
}

// Run 在 listener 上接受前端连接，直到调试进程断开或 ctx 结束
// 调试进程断开时返回 ErrDebuggeeDisconnected，所有前端连接随之关闭
func (b *Bridge) Run(ctx context.Context, listener net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.debugger.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = listener.Close()
		return nil
	})
	g.Go(func() error {
		return b.serve(ctx, listener)
	})
	err := g.Wait()
	b.sessions.Wait()
	return err
}

func (b *Bridge) serve(ctx context.Context, listener net.Listener) error {
	logrus.Infof("[Bridge] listening at %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		b.sessions.Add(1)
		gosync.Go(ctx, func(ctx context.Context) {
			defer b.sessions.Done()
			b.handleConnection(ctx, conn)
		})
	}
}
