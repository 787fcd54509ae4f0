package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"github.com/fansqz/inspector-bridge/constants"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"io"
	"net"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// debuggee 测试用的调试进程一端
type debuggee struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newPair(t *testing.T) (*Transport, *debuggee) {
	local, remote := net.Pipe()
	return New(local), &debuggee{conn: remote, reader: bufio.NewReader(remote)}
}

func (d *debuggee) readRequest(t *testing.T) map[string]interface{} {
	body, err := dap.ReadBaseMessage(d.reader)
	require.NoError(t, err)
	req := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func (d *debuggee) write(t *testing.T, body string) {
	require.NoError(t, dap.WriteBaseMessage(d.conn, []byte(body)))
}

func runTransport(tr *Transport) chan error {
	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()
	return done
}

func TestSendEncodesContentLength(t *testing.T) {
	tr, d := newPair(t)
	done := runTransport(tr)

	go func() { _, _ = tr.Send("Profiler.start", nil, nil) }()
	header, err := d.reader.ReadString('\n')
	require.NoError(t, err)
	body := `{"seq":1,"type":"request","command":"Profiler.start"}`
	assert.Equal(t, "Content-Length: 53\r\n", header)
	rest := make([]byte, 2+len(body))
	_, err = io.ReadFull(d.reader, rest)
	require.NoError(t, err)
	assert.Equal(t, "\r\n"+body, string(rest))

	require.NoError(t, d.conn.Close())
	assert.ErrorIs(t, <-done, e.ErrDebuggeeDisconnected)
}

func TestResponsesMatchedOutOfOrder(t *testing.T) {
	tr, d := newPair(t)
	done := runTransport(tr)

	results := make(chan string, 2)
	handler := func(name string) ResponseHandler {
		return func(resp *protocol.DebuggerMessage) { results <- name + ":" + string(resp.Body) }
	}
	go func() {
		_, _ = tr.Send("first", nil, handler("first"))
		_, _ = tr.Send("second", nil, handler("second"))
	}()
	assert.Equal(t, "first", d.readRequest(t)["command"])
	assert.Equal(t, "second", d.readRequest(t)["command"])

	d.write(t, `{"request_seq":2,"body":2}`)
	d.write(t, `{"request_seq":1,"body":1}`)
	assert.Equal(t, "second:2", <-results)
	assert.Equal(t, "first:1", <-results)
	assert.Equal(t, 0, tr.Pending())

	// 重复或未知的响应被忽略
	d.write(t, `{"request_seq":1,"body":1}`)
	d.write(t, `{"request_seq":99}`)

	require.NoError(t, d.conn.Close())
	<-done
	assert.Empty(t, results)
}

func TestEventsFanOutInOrder(t *testing.T) {
	tr, d := newPair(t)
	var a, b []string
	tr.On("break", func(ev *protocol.DebuggerMessage) { a = append(a, string(ev.Body)) })
	tr.On("break", func(ev *protocol.DebuggerMessage) { b = append(b, string(ev.Body)) })
	tr.On("afterCompile", func(ev *protocol.DebuggerMessage) { t.Error("unexpected afterCompile") })
	done := runTransport(tr)

	d.write(t, `{"seq":1,"type":"event","event":"break","body":1}`)
	d.write(t, `{"seq":2,"type":"event","event":"break","body":2}`)
	require.NoError(t, d.conn.Close())
	<-done

	assert.Equal(t, []string{"1", "2"}, a)
	assert.Equal(t, []string{"1", "2"}, b)
}

func TestConnectBannerEvent(t *testing.T) {
	tr, d := newPair(t)
	var banner map[string]string
	tr.On(constants.EventConnect, func(ev *protocol.DebuggerMessage) {
		require.NoError(t, json.Unmarshal(ev.Body, &banner))
	})
	done := runTransport(tr)
	_, err := io.WriteString(d.conn, "Type: connect\r\nV8-Version: 3.14.5.9\r\nContent-Length: 0\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, d.conn.Close())
	<-done
	assert.Equal(t, "3.14.5.9", banner["V8-Version"])
}

func TestCloseAbandonsPendingRequests(t *testing.T) {
	tr, d := newPair(t)
	closed := make(chan struct{})
	tr.On(constants.EventClose, func(ev *protocol.DebuggerMessage) { close(closed) })
	done := runTransport(tr)

	go func() {
		_, _ = tr.Send("evaluate", nil, func(resp *protocol.DebuggerMessage) {
			t.Error("abandoned request must not be answered")
		})
	}()
	d.readRequest(t)
	require.NoError(t, d.conn.Close())

	assert.ErrorIs(t, <-done, e.ErrDebuggeeDisconnected)
	<-closed
	assert.Equal(t, 0, tr.Pending())
	_, err := tr.Send("evaluate", nil, nil)
	assert.ErrorIs(t, err, e.ErrTransportClosed)
}

func TestRequest(t *testing.T) {
	tr, d := newPair(t)
	done := runTransport(tr)

	go func() {
		req := d.readRequest(t)
		seq := int(req["seq"].(float64))
		d.write(t, `{"request_seq":`+itoa(seq)+`,"success":false,"command":"evaluate","message":"ReferenceError: x is not defined"}`)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.Request(ctx, "evaluate", &protocol.EvaluateArguments{Expression: "x"})
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "ReferenceError: x is not defined", respErr.Message)

	require.NoError(t, tr.Close())
	<-done
}

func TestAsError(t *testing.T) {
	ok := true
	assert.NoError(t, AsError(&protocol.DebuggerMessage{Success: &ok}))

	err := AsError(&protocol.DebuggerMessage{Success: new(bool), Command: "evaluate", Message: "boom"})
	assert.EqualError(t, err, "evaluate: boom")

	err = AsError(&protocol.DebuggerMessage{Success: new(bool), Message: "Unknown command"})
	assert.EqualError(t, err, "Unknown command")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tr, d := newPair(t)
	defer d.conn.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()
	tr, err := Dial(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
}

func itoa(i int) string {
	data, _ := json.Marshal(i)
	return string(data)
}
