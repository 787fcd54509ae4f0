package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/fansqz/inspector-bridge/registry"
	"github.com/fansqz/inspector-bridge/utils"
	"github.com/fansqz/inspector-bridge/websocket"
	"github.com/sirupsen/logrus"
	"io"
	"net"
	"time"
)

// session 一个前端连接
type session struct {
	id   string
	conn *websocket.Conn
}

func (s *session) Send(message interface{}) error {
	return s.conn.WriteJSON(message)
}

// handleConnection 握手后读取前端命令，直到连接关闭
func (b *Bridge) handleConnection(ctx context.Context, raw net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	_ = raw.SetDeadline(time.Now().Add(handshakeTimeout))
	conn, req, err := websocket.Accept(raw)
	stop()
	if err != nil {
		logrus.Warnf("[Bridge] handshake with %s fail, err = %v", raw.RemoteAddr(), err)
		_ = raw.Close()
		return
	}
	_ = raw.SetDeadline(time.Time{})
	// Run 结束时关闭所有前端连接
	stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s := &session{id: utils.GetUUID(), conn: conn}
	b.attach(s)
	defer b.registry.Detach(s.id, func() {
		_ = conn.Close()
		logrus.Infof("[Bridge] connection %s closed", utils.GetShortID(s.id))
	})
	logrus.Infof("[Bridge] connection %s from %s, path = %s", utils.GetShortID(s.id), conn.RemoteAddr(), req.URL.Path)

	for {
		text, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsRecoverable(err) {
				logrus.Warnf("[Bridge] connection %s skip frame, err = %v", utils.GetShortID(s.id), err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logrus.Debugf("[Bridge] connection %s read end, err = %v", utils.GetShortID(s.id), err)
			}
			return
		}
		b.handleMessage(s.id, text)
	}
}

// handleMessage 处理一条前端命令，响应按连接 id 回复，连接已断开时丢弃
func (b *Bridge) handleMessage(id string, text string) {
	cmd := &protocol.Command{}
	if err := json.Unmarshal([]byte(text), cmd); err != nil {
		logrus.Warnf("[Bridge] parse command fail, err = %v", err)
		return
	}
	logrus.Debugf("[Bridge] command id = %d, method = %s", cmd.ID, cmd.Method)
	b.dispatcher.Dispatch(cmd.Method, cmd.Params, func(result interface{}, err error) {
		var resp *protocol.Response
		if err != nil {
			logrus.Debugf("[Bridge] command %s fail, err = %v", cmd.Method, err)
			resp = protocol.NewErrorResponse(cmd.ID, err)
		} else {
			resp = protocol.NewResponse(cmd.ID, result)
		}
		b.registry.Find(id, func(client registry.Client) {
			if err := client.Send(resp); err != nil {
				logrus.Warnf("[Bridge] reply to %s fail, err = %v", utils.GetShortID(id), err)
			}
		})
	})
}
