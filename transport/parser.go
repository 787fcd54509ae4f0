package transport

import (
	"bytes"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"net/textproto"
	"strconv"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

const headerContentLength = "Content-Length"

// Message 一条完整的调试进程消息
type Message struct {
	Header map[string]string
	Body   []byte
}

// Parser Content-Length 分帧的流式解析器
// 可以按任意边界分块写入，不完整的消息保留在缓冲区中等待后续数据
type Parser struct {
	buf    []byte
	header map[string]string
	length int

	onMessage func(Message)
	onError   func(error)
}

// NewParser onError 可以为空
func NewParser(onMessage func(Message), onError func(error)) *Parser {
	return &Parser{
		onMessage: onMessage,
		onError:   onError,
	}
}

// Write 追加数据并分发其中所有完整的消息，总是返回 len(p), nil
func (p *Parser) Write(chunk []byte) (int, error) {
	p.buf = append(p.buf, chunk...)
	for p.next() {
	}
	return len(chunk), nil
}

// Buffered 缓冲区中尚未组成消息的字节数
func (p *Parser) Buffered() int {
	return len(p.buf)
}

func (p *Parser) next() bool {
	if p.header == nil {
		idx := bytes.Index(p.buf, headerTerminator)
		if idx < 0 {
			return false
		}
		header := parseHeader(p.buf[:idx])
		p.consume(idx + len(headerTerminator))

		length, err := contentLength(header)
		if err != nil {
			// 无法确定消息体长度，丢弃这段头部
			if p.onError != nil {
				p.onError(err)
			}
			return true
		}
		p.header = header
		p.length = length
	}
	if len(p.buf) < p.length {
		return false
	}
	body := make([]byte, p.length)
	copy(body, p.buf[:p.length])
	p.consume(p.length)

	msg := Message{Header: p.header, Body: body}
	p.header = nil
	p.length = 0
	p.onMessage(msg)
	return true
}

func (p *Parser) consume(n int) {
	p.buf = append(p.buf[:0], p.buf[n:]...)
}

func parseHeader(raw []byte) map[string]string {
	header := make(map[string]string)
	for _, line := range strings.Split(string(raw), "\r\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		header[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return header
}

func contentLength(header map[string]string) (int, error) {
	value, ok := header[headerContentLength]
	if !ok {
		return 0, fmt.Errorf("%w: header %v", e.ErrMissingContentLength, header)
	}
	length, err := strconv.Atoi(value)
	if err != nil || length < 0 {
		return 0, fmt.Errorf("%w: invalid value %q", e.ErrMissingContentLength, value)
	}
	return length, nil
}
