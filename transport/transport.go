// Package transport 维护到被调试进程的单一请求/响应/事件通道
// 消息以 Content-Length 头分帧，内容为 V8 调试协议的 JSON
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/fansqz/inspector-bridge/constants"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const readChunkSize = 64 * 1024

// ResponseHandler 收到对应响应时调用，每个请求最多调用一次
type ResponseHandler func(resp *protocol.DebuggerMessage)

// EventListener 收到事件时调用，按调试进程发出的顺序
type EventListener func(event *protocol.DebuggerMessage)

// ResponseError 调试进程返回的失败响应
type ResponseError struct {
	Command string
	Message string
}

func (r *ResponseError) Error() string {
	if r.Command == "" {
		return r.Message
	}
	return fmt.Sprintf("%s: %s", r.Command, r.Message)
}

// AsError 失败响应转为 error，成功时返回 nil
func AsError(resp *protocol.DebuggerMessage) error {
	if resp.IsSuccess() {
		return nil
	}
	return &ResponseError{Command: resp.Command, Message: resp.Message}
}

// Transport 到一个调试进程的连接
// 响应按 request_seq 与请求匹配，与到达顺序无关；没有匹配请求的响应直接忽略
// 连接结束时未完成的请求被丢弃，其回调不会被调用
type Transport struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex

	mu        sync.Mutex
	seq       int
	pending   map[int]ResponseHandler
	listeners map[string][]EventListener

	parser *Parser
	closed atomic.Bool
	done   chan struct{}
}

func New(conn io.ReadWriteCloser) *Transport {
	t := &Transport{
		conn:      conn,
		pending:   make(map[int]ResponseHandler),
		listeners: make(map[string][]EventListener),
		done:      make(chan struct{}),
	}
	t.parser = NewParser(t.dispatch, func(err error) {
		logrus.Warnf("[Transport] drop malformed message, err = %v", err)
	})
	return t
}

// Dial 连接调试端口，调试进程可能还没开始监听，失败时按指数退避重试直到 timeout
func Dial(ctx context.Context, address string, timeout time.Duration) (*Transport, error) {
	var conn net.Conn
	operation := func() error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			logrus.Debugf("[Transport] dial %s fail, err = %v", address, err)
			return err
		}
		conn = c
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("dial debugger %s: %w", address, err)
	}
	logrus.Infof("[Transport] connected to debugger at %s", address)
	return New(conn), nil
}

// Send 发送请求，返回分配的序列号
// handler 可以为空，表示不关心响应
func (t *Transport) Send(command string, args interface{}, handler ResponseHandler) (int, error) {
	if t.closed.Load() {
		return 0, e.ErrTransportClosed
	}

	t.mu.Lock()
	t.seq++
	seq := t.seq
	if handler != nil {
		t.pending[seq] = handler
	}
	t.mu.Unlock()

	req := &protocol.DebuggerRequest{
		Seq:       seq,
		Type:      constants.RequestMessage,
		Command:   command,
		Arguments: args,
	}
	if err := t.write(req); err != nil {
		t.mu.Lock()
		delete(t.pending, seq)
		t.mu.Unlock()
		return 0, err
	}
	logrus.Debugf("[Transport] request seq = %d, command = %s", seq, command)
	return seq, nil
}

// Request 发送请求并等待响应
// ctx 结束时返回 ctx.Err()，之后到达的响应被丢弃
func (t *Transport) Request(ctx context.Context, command string, args interface{}) (*protocol.DebuggerMessage, error) {
	ch := make(chan *protocol.DebuggerMessage, 1)
	if _, err := t.Send(command, args, func(resp *protocol.DebuggerMessage) { ch <- resp }); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, e.ErrTransportClosed
	case resp := <-ch:
		return resp, AsError(resp)
	}
}

// On 订阅事件
func (t *Transport) On(event string, listener EventListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[event] = append(t.listeners[event], listener)
}

// Pending 等待响应的请求数
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Done 连接结束后关闭
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Run 读取并分发消息，直到连接结束
// 连接结束时发出 close 事件并返回 ErrDebuggeeDisconnected，不会重连
func (t *Transport) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			_, _ = t.parser.Write(buf[:n])
		}
		if err != nil {
			t.shutdown()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return e.ErrDebuggeeDisconnected
			}
			return fmt.Errorf("%w: %v", e.ErrDebuggeeDisconnected, err)
		}
	}
}

// Close 关闭连接，Run 随之返回
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// shutdown 丢弃未完成的请求并通知 close 事件的订阅者
func (t *Transport) shutdown() {
	t.closed.Store(true)
	_ = t.conn.Close()

	t.mu.Lock()
	abandoned := len(t.pending)
	t.pending = make(map[int]ResponseHandler)
	listeners := t.listeners[constants.EventClose]
	t.mu.Unlock()

	select {
	case <-t.done:
		return
	default:
		close(t.done)
	}
	if abandoned > 0 {
		logrus.Infof("[Transport] connection closed, %d pending requests abandoned", abandoned)
	}
	closeEvent := &protocol.DebuggerMessage{Type: string(constants.EventMessage), Event: constants.EventClose}
	for _, l := range listeners {
		l(closeEvent)
	}
}

func (t *Transport) write(req *protocol.DebuggerRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var frame bytes.Buffer
	if err = dap.WriteBaseMessage(&frame, data); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err = t.conn.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// dispatch 在读取协程中调用
func (t *Transport) dispatch(msg Message) {
	if msg.Header["Type"] == constants.EventConnect {
		body, _ := json.Marshal(msg.Header)
		t.emit(&protocol.DebuggerMessage{
			Type:  string(constants.EventMessage),
			Event: constants.EventConnect,
			Body:  body,
		})
		return
	}
	if len(msg.Body) == 0 {
		return
	}

	m := &protocol.DebuggerMessage{}
	if err := json.Unmarshal(msg.Body, m); err != nil {
		logrus.Warnf("[Transport] parse message fail, err = %v", err)
		return
	}

	if m.RequestSeq != nil {
		t.mu.Lock()
		handler, ok := t.pending[*m.RequestSeq]
		delete(t.pending, *m.RequestSeq)
		t.mu.Unlock()
		if ok {
			handler(m)
			return
		}
		if m.Event == "" {
			logrus.Debugf("[Transport] ignore unmatched response, request_seq = %d", *m.RequestSeq)
			return
		}
	}
	if m.Event != "" {
		t.emit(m)
	}
}

func (t *Transport) emit(event *protocol.DebuggerMessage) {
	t.mu.Lock()
	listeners := append([]EventListener(nil), t.listeners[event.Event]...)
	t.mu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}
