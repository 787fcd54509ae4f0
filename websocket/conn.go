package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	readChunkSize     = 4096
	closeWriteTimeout = time.Second
)

// Conn 握手完成后的连接，按帧收发文本消息
// ReadMessage 只能在一个协程中调用，写入是并发安全的
type Conn struct {
	conn   net.Conn
	reader io.Reader

	decoder Decoder
	frames  []Frame
	chunk   []byte

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewConn r 为握手时使用的读取器，其中可能已缓存了帧数据
func NewConn(conn net.Conn, r io.Reader) *Conn {
	if r == nil {
		r = conn
	}
	return &Conn{
		conn:   conn,
		reader: r,
		chunk:  make([]byte, readChunkSize),
	}
}

// ReadMessage 读取下一条文本消息
// ErrHighOrderFrame、ErrInvalidUTF8 不影响后续读取，ErrCloseFrame 和 io 错误表示连接结束
func (c *Conn) ReadMessage() (string, error) {
	for len(c.frames) == 0 {
		n, err := c.reader.Read(c.chunk)
		if n > 0 {
			c.frames = append(c.frames, c.decoder.Decode(c.chunk[:n])...)
		}
		if err != nil && len(c.frames) == 0 {
			return "", err
		}
	}
	frame := c.frames[0]
	c.frames = c.frames[1:]
	return frame.Text, frame.Err
}

// WriteMessage 写入一条文本消息
func (c *Conn) WriteMessage(text string) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(Encode(text))
	return err
}

// WriteJSON 序列化 v 后写入
func (c *Conn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.WriteMessage(string(data))
}

// Close 发送关闭帧并关闭底层连接
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
	_, _ = c.conn.Write(closeFrame)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsRecoverable 读取错误是否可以忽略并继续读取
func IsRecoverable(err error) bool {
	return errors.Is(err, e.ErrHighOrderFrame) || errors.Is(err, e.ErrInvalidUTF8)
}
