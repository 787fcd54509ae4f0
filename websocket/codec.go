// Package websocket 实现前端使用的旧版 (hixie-75/76) WebSocket 协议：
// 握手、单字节分隔的文本帧编解码，以及基于帧的连接。
package websocket

import (
	e "github.com/fansqz/inspector-bridge/error"
	"math"
	"unicode/utf8"
)

const (
	// frameStart 文本帧起始标记
	frameStart byte = 0x00
	// frameEnd 文本帧结束标记
	frameEnd byte = 0xFF
	// highOrderBit 标记字节的最高位，置位时为长度前缀的数据帧
	highOrderBit byte = 0x80
	// maxFrameLength 长度前缀允许的最大值，超出后放弃该帧并回到标记状态
	maxFrameLength = math.MaxInt32
)

type decodeState int

const (
	stateMarker decodeState = iota
	stateText
	stateLength
	stateSkip
)

// Frame 解码得到的一帧，Err 不为空时表示该位置出现了无法处理的数据
type Frame struct {
	Text string
	Err  error
}

// Decoder 流式解码器，未完成的帧会保留到下一次 Decode
// 不是并发安全的，每个连接一个
type Decoder struct {
	state  decodeState
	buf    []byte
	marker byte
	length int
}

// Decode 消费 p 中的全部字节，返回其中完整的帧
// 长度前缀的数据帧不支持，以 ErrHighOrderFrame 报告并跳过其内容；
// 0xFF 0x00 为关闭帧，以 ErrCloseFrame 报告
func (d *Decoder) Decode(p []byte) []Frame {
	var frames []Frame
	for _, b := range p {
		switch d.state {
		case stateMarker:
			if b&highOrderBit == 0 {
				d.state = stateText
				d.buf = d.buf[:0]
				continue
			}
			d.marker = b
			d.length = 0
			d.state = stateLength
		case stateText:
			if b == frameEnd {
				frames = append(frames, d.finishText())
				d.state = stateMarker
				continue
			}
			d.buf = append(d.buf, b)
		case stateLength:
			if d.length > maxFrameLength>>7 {
				frames = append(frames, Frame{Err: e.ErrHighOrderFrame})
				d.length = 0
				d.state = stateMarker
				continue
			}
			d.length = d.length<<7 | int(b&^highOrderBit)
			if b&highOrderBit != 0 {
				continue
			}
			if d.marker == frameEnd && d.length == 0 {
				frames = append(frames, Frame{Err: e.ErrCloseFrame})
				d.state = stateMarker
				continue
			}
			frames = append(frames, Frame{Err: e.ErrHighOrderFrame})
			if d.length == 0 {
				d.state = stateMarker
			} else {
				d.state = stateSkip
			}
		case stateSkip:
			d.length--
			if d.length == 0 {
				d.state = stateMarker
			}
		}
	}
	return frames
}

// Buffered 当前未完成帧中已缓存的字节数
func (d *Decoder) Buffered() int {
	if d.state != stateText {
		return 0
	}
	return len(d.buf)
}

func (d *Decoder) finishText() Frame {
	if !utf8.Valid(d.buf) {
		return Frame{Err: e.ErrInvalidUTF8}
	}
	return Frame{Text: string(d.buf)}
}

// Encode 将文本包装为一帧，不分片
func Encode(text string) []byte {
	out := make([]byte, 0, len(text)+2)
	out = append(out, frameStart)
	out = append(out, text...)
	return append(out, frameEnd)
}

// closeFrame 旧版协议的关闭帧
var closeFrame = []byte{frameEnd, 0x00}
