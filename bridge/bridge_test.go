package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/fansqz/inspector-bridge/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 5 * time.Second

type debuggeeRequest struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments"`
	raw       string
}

// fakeDebuggee 调试进程一端，读写在不同的协程中，写入不会阻塞读取
type fakeDebuggee struct {
	conn       net.Conn
	requests   chan *debuggeeRequest
	writes     chan string
	// autoInject 自动回复注入请求，为 false 时注入请求也进入 requests
	autoInject bool
	wg         sync.WaitGroup
}

func newFakeDebuggee(conn net.Conn, autoInject bool) *fakeDebuggee {
	d := &fakeDebuggee{
		conn:       conn,
		requests:   make(chan *debuggeeRequest, 64),
		writes:     make(chan string, 64),
		autoInject: autoInject,
	}
	d.wg.Add(2)
	go d.readLoop()
	go d.writeLoop()
	return d
}

func (d *fakeDebuggee) readLoop() {
	defer d.wg.Done()
	defer close(d.writes)
	parser := transport.NewParser(func(msg transport.Message) {
		req := &debuggeeRequest{raw: string(msg.Body)}
		if err := json.Unmarshal(msg.Body, req); err != nil {
			return
		}
		if d.autoInject && req.Command == "evaluate" && strings.Contains(string(req.Arguments), "function (bootstrap") {
			d.respond(req.Seq, `{"type":"boolean","value":true}`)
			return
		}
		d.requests <- req
	}, nil)
	_, _ = io.Copy(parser, d.conn)
}

func (d *fakeDebuggee) writeLoop() {
	defer d.wg.Done()
	for body := range d.writes {
		if _, err := fmt.Fprintf(d.conn, "Content-Length: %d\r\n\r\n%s", len(body), body); err != nil {
			return
		}
	}
}

func (d *fakeDebuggee) send(body string) {
	d.writes <- body
}

func (d *fakeDebuggee) respond(seq int, body string) {
	d.send(fmt.Sprintf(`{"seq":0,"type":"response","request_seq":%d,"success":true,"body":%s}`, seq, body))
}

func (d *fakeDebuggee) fail(seq int, message string) {
	d.send(fmt.Sprintf(`{"seq":0,"type":"response","request_seq":%d,"success":false,"message":%q}`, seq, message))
}

func (d *fakeDebuggee) next(t *testing.T) *debuggeeRequest {
	select {
	case req := <-d.requests:
		return req
	case <-time.After(waitTimeout):
		require.FailNow(t, "debuggee request timeout")
		return nil
	}
}

func (d *fakeDebuggee) close() {
	_ = d.conn.Close()
	d.wg.Wait()
}

type harness struct {
	bridge   *Bridge
	debuggee *fakeDebuggee
	address  string
	cancel   context.CancelFunc
	done     chan error
}

func startBridge(t *testing.T, autoInject bool) *harness {
	bridgeSide, debuggeeSide := net.Pipe()
	debuggee := newFakeDebuggee(debuggeeSide, autoInject)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		bridge:   New(transport.New(bridgeSide), injection.Config{Enabled: true, Timeout: waitTimeout}),
		debuggee: debuggee,
		address:  listener.Addr().String(),
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() {
		h.done <- h.bridge.Run(ctx, listener)
	}()
	return h
}

// stop 结束 Run 并返回其结果
func (h *harness) stop(t *testing.T) error {
	h.cancel()
	var err error
	select {
	case err = <-h.done:
	case <-time.After(waitTimeout):
		require.FailNow(t, "bridge did not stop")
	}
	h.debuggee.close()
	return err
}

type client struct {
	conn *websocket.Conn
	raw  net.Conn
}

func (h *harness) connect(t *testing.T) *client {
	clients := h.bridge.Clients()
	raw, err := net.Dial("tcp", h.address)
	require.NoError(t, err)
	_, err = io.WriteString(raw, "GET /node HTTP/1.1\r\nHost: "+h.address+"\r\n"+
		"Upgrade: WebSocket\r\nConnection: Upgrade\r\nOrigin: http://"+h.address+"\r\n\r\n")
	require.NoError(t, err)

	br := bufio.NewReader(raw)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	require.Eventually(t, func() bool { return h.bridge.Clients() == clients+1 }, waitTimeout, 10*time.Millisecond)
	return &client{conn: websocket.NewConn(raw, br), raw: raw}
}

func (c *client) send(t *testing.T, text string) {
	require.NoError(t, c.conn.WriteMessage(text))
}

func (c *client) read(t *testing.T) map[string]interface{} {
	_ = c.raw.SetReadDeadline(time.Now().Add(waitTimeout))
	text, err := c.conn.ReadMessage()
	require.NoError(t, err)
	message := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(text), &message))
	return message
}

func (c *client) close() {
	_ = c.raw.Close()
}

func TestProfilerStartRoundTrip(t *testing.T) {
	h := startBridge(t, true)
	c := h.connect(t)
	defer c.close()

	c.send(t, `{"id":1,"method":"Profiler.start"}`)
	req := h.debuggee.next(t)
	assert.Equal(t, "Profiler.start", req.Command)
	assert.Equal(t, "request", req.Type)
	assert.NotContains(t, req.raw, "arguments")
	h.debuggee.send(fmt.Sprintf(`{"request_seq":%d}`, req.Seq))

	assert.Equal(t, map[string]interface{}{
		"id":      float64(1),
		"success": true,
		"result":  map[string]interface{}{},
	}, c.read(t))

	assert.ErrorIs(t, h.stop(t), context.Canceled)
}

func TestReplyGoesToRequestingClient(t *testing.T) {
	h := startBridge(t, true)
	a := h.connect(t)
	defer a.close()
	b := h.connect(t)
	defer b.close()

	a.send(t, `{"id":7,"method":"Runtime.enable"}`)
	resp := a.read(t)
	assert.Equal(t, float64(7), resp["id"])
	assert.Equal(t, true, resp["success"])

	for _, c := range []*client{a, b} {
		event := c.read(t)
		assert.Equal(t, "event", event["type"])
		assert.Equal(t, "Runtime.executionContextCreated", event["method"])
	}

	b.send(t, `{"id":8,"method":"Page.reload"}`)
	resp = b.read(t)
	assert.Equal(t, float64(8), resp["id"])
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"].(map[string]interface{})["message"], e.ErrMethodNotFound.Error())

	assert.ErrorIs(t, h.stop(t), context.Canceled)
}

func TestInjectionFailureIsReported(t *testing.T) {
	h := startBridge(t, false)
	c := h.connect(t)
	defer c.close()

	for range injection.Keys() {
		req := h.debuggee.next(t)
		require.Equal(t, "evaluate", req.Command)
		h.debuggee.fail(req.Seq, "Cannot find module 'v8-profiler'")
	}
	for range injection.Keys() {
		event := c.read(t)
		assert.Equal(t, "Console.messageAdded", event["method"])
		message := event["params"].(map[string]interface{})["message"].(map[string]interface{})
		assert.Equal(t, "error", message["level"])
		assert.Contains(t, message["text"], "v8-profiler")
	}

	c.send(t, `{"id":2,"method":"Profiler.start"}`)
	resp := c.read(t)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"].(map[string]interface{})["message"], e.ErrNotInjected.Error())

	c.send(t, `{"id":3,"method":"Profiler.enable"}`)
	resp = c.read(t)
	assert.Equal(t, true, resp["success"])

	assert.ErrorIs(t, h.stop(t), context.Canceled)
}

func TestInjectionFailureReplayedToLaterClients(t *testing.T) {
	h := startBridge(t, false)

	for range injection.Keys() {
		req := h.debuggee.next(t)
		require.Equal(t, "evaluate", req.Command)
		h.debuggee.fail(req.Seq, "Cannot find module 'v8-profiler'")
	}
	require.Eventually(t, func() bool {
		for _, key := range injection.Keys() {
			if inj := h.bridge.manager.Get(key); inj == nil || !inj.Settled() {
				return false
			}
		}
		return true
	}, waitTimeout, 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		c := h.connect(t)
		for range injection.Keys() {
			event := c.read(t)
			assert.Equal(t, "Console.messageAdded", event["method"])
			message := event["params"].(map[string]interface{})["message"].(map[string]interface{})
			assert.Equal(t, "error", message["level"])
			assert.Contains(t, message["text"], "v8-profiler")
		}
		c.send(t, `{"id":1,"method":"Profiler.start"}`)
		resp := c.read(t)
		assert.Equal(t, float64(1), resp["id"])
		assert.Equal(t, false, resp["success"])
		c.close()
		require.Eventually(t, func() bool { return h.bridge.Clients() == 0 }, waitTimeout, 10*time.Millisecond)
	}

	assert.ErrorIs(t, h.stop(t), context.Canceled)
}

func TestDebuggerEventsAreBroadcast(t *testing.T) {
	h := startBridge(t, true)
	c := h.connect(t)
	defer c.close()

	h.debuggee.send(`{"seq":5,"type":"event","event":"afterCompile","body":{"script":{"id":21,"name":"/app/lib.js","lineOffset":0,"columnOffset":0,"lineCount":3}}}`)
	event := c.read(t)
	assert.Equal(t, "Debugger.scriptParsed", event["method"])
	params := event["params"].(map[string]interface{})
	assert.Equal(t, "21", params["scriptId"])
	assert.Equal(t, "/app/lib.js", params["url"])

	assert.ErrorIs(t, h.stop(t), context.Canceled)
}

func TestDebuggeeDisconnectStopsBridge(t *testing.T) {
	h := startBridge(t, true)
	c := h.connect(t)
	defer c.close()

	h.debuggee.close()
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, e.ErrDebuggeeDisconnected)
	case <-time.After(waitTimeout):
		require.FailNow(t, "bridge did not stop")
	}

	_ = c.raw.SetReadDeadline(time.Now().Add(waitTimeout))
	_, err := c.conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, h.bridge.Clients())
	h.cancel()
}
