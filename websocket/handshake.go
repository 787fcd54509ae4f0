package websocket

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const (
	headerKey1 = "Sec-Websocket-Key1"
	headerKey2 = "Sec-Websocket-Key2"
	// key3Len draft-76 握手请求体中 key3 的长度
	key3Len = 8
)

// Accept 在 conn 上完成旧版握手，返回可收发帧的连接和握手请求
// 带 Sec-WebSocket-Key1/Key2 的请求按 draft-76 应答，否则按 draft-75 应答
func Accept(conn net.Conn) (*Conn, *http.Request, error) {
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read request: %v", e.ErrHandshake, err)
	}
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") ||
		!headerContainsToken(req.Header, "Connection", "upgrade") {
		return nil, req, fmt.Errorf("%w: not an upgrade request", e.ErrHandshake)
	}

	var resp bytes.Buffer
	key1, key2 := req.Header.Get(headerKey1), req.Header.Get(headerKey2)
	if key1 != "" && key2 != "" {
		key3 := make([]byte, key3Len)
		if _, err = io.ReadFull(br, key3); err != nil {
			return nil, req, fmt.Errorf("%w: read key3: %v", e.ErrHandshake, err)
		}
		digest, err := challengeResponse(key1, key2, key3)
		if err != nil {
			return nil, req, err
		}
		resp.WriteString("HTTP/1.1 101 WebSocket Protocol Handshake\r\n")
		resp.WriteString("Upgrade: WebSocket\r\n")
		resp.WriteString("Connection: Upgrade\r\n")
		fmt.Fprintf(&resp, "Sec-WebSocket-Origin: %s\r\n", req.Header.Get("Origin"))
		fmt.Fprintf(&resp, "Sec-WebSocket-Location: %s\r\n", location(req))
		if protocol := req.Header.Get("Sec-WebSocket-Protocol"); protocol != "" {
			fmt.Fprintf(&resp, "Sec-WebSocket-Protocol: %s\r\n", protocol)
		}
		resp.WriteString("\r\n")
		resp.Write(digest)
	} else {
		resp.WriteString("HTTP/1.1 101 Web Socket Protocol Handshake\r\n")
		resp.WriteString("Upgrade: WebSocket\r\n")
		resp.WriteString("Connection: Upgrade\r\n")
		fmt.Fprintf(&resp, "WebSocket-Origin: %s\r\n", req.Header.Get("Origin"))
		fmt.Fprintf(&resp, "WebSocket-Location: %s\r\n", location(req))
		resp.WriteString("\r\n")
	}
	if _, err = conn.Write(resp.Bytes()); err != nil {
		return nil, req, fmt.Errorf("%w: write response: %v", e.ErrHandshake, err)
	}
	return NewConn(conn, br), req, nil
}

// challengeResponse draft-76 的 MD5 应答
func challengeResponse(key1, key2 string, key3 []byte) ([]byte, error) {
	n1, err := keyNumber(key1)
	if err != nil {
		return nil, err
	}
	n2, err := keyNumber(key2)
	if err != nil {
		return nil, err
	}
	challenge := make([]byte, 0, 16)
	challenge = binary.BigEndian.AppendUint32(challenge, n1)
	challenge = binary.BigEndian.AppendUint32(challenge, n2)
	challenge = append(challenge, key3...)
	sum := md5.Sum(challenge)
	return sum[:], nil
}

// keyNumber key 中的数字拼接后除以空格数
func keyNumber(key string) (uint32, error) {
	var digits strings.Builder
	spaces := 0
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ':
			spaces++
		}
	}
	if spaces == 0 || digits.Len() == 0 {
		return 0, fmt.Errorf("%w: malformed key %q", e.ErrHandshake, key)
	}
	n, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil || n%uint64(spaces) != 0 || n/uint64(spaces) > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: malformed key %q", e.ErrHandshake, key)
	}
	return uint32(n / uint64(spaces)), nil
}

func location(req *http.Request) string {
	return "ws://" + req.Host + req.URL.RequestURI()
}

// headerContainsToken 逗号分隔的头部中是否包含 token，忽略大小写
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
