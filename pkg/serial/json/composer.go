package json

import (
	"bufio"
	"math"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// composer 负责文本输出：缩进、分隔符与字符串转义。
// 写入错误由 bufio.Writer 保留，在会话结束的 Flush 时统一返回。
type composer struct {
	w              *bufio.Writer
	pretty         bool
	indent         string
	level          int
	escapeNonASCII bool
	scratch        []byte
}

func (c *composer) raw(s string) {
	_, _ = c.w.WriteString(s)
}

func (c *composer) char(b byte) {
	_ = c.w.WriteByte(b)
}

// newline 在美化输出时换行并按当前层级缩进。
func (c *composer) newline() {
	if !c.pretty {
		return
	}
	c.char('\n')
	for i := 0; i < c.level; i++ {
		c.raw(c.indent)
	}
}

func (c *composer) colon() {
	c.char(':')
	if c.pretty {
		c.char(' ')
	}
}

func (c *composer) integer(v int64) {
	c.scratch = strconv.AppendInt(c.scratch[:0], v, 10)
	_, _ = c.w.Write(c.scratch)
}

// float 以能够精确往返的最短形式输出有限浮点数。
func (c *composer) float(v float64, bits int) {
	c.scratch = appendFloat(c.scratch[:0], v, bits)
	_, _ = c.w.Write(c.scratch)
}

// appendFloat 的格式与 encoding/json 一致：较大或较小的数使用指数形式。
func appendFloat(b []byte, v float64, bits int) []byte {
	abs := math.Abs(v)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	b = strconv.AppendFloat(b, v, format, -1, bits)
	if format == 'e' {
		// e-09 => e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

// quoted 输出带引号并转义的字符串。
func (c *composer) quoted(s string) {
	c.char('"')
	start := 0
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}
			c.raw(s[start:i])
			switch b {
			case '"', '\\':
				c.char('\\')
				c.char(b)
			case '\n':
				c.raw(`\n`)
			case '\r':
				c.raw(`\r`)
			case '\t':
				c.raw(`\t`)
			case '\b':
				c.raw(`\b`)
			case '\f':
				c.raw(`\f`)
			default:
				c.unicodeEscape(rune(b))
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// 非法的 UTF-8 字节替换为 U+FFFD。
			c.raw(s[start:i])
			c.raw(`\ufffd`)
			i++
			start = i
			continue
		}
		if !c.escapeNonASCII {
			i += size
			continue
		}
		c.raw(s[start:i])
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			c.unicodeEscape(r1)
			c.unicodeEscape(r2)
		} else {
			c.unicodeEscape(r)
		}
		i += size
		start = i
	}
	c.raw(s[start:])
	c.char('"')
}

func (c *composer) unicodeEscape(r rune) {
	c.raw(`\u`)
	c.char(hexDigits[r>>12&0xF])
	c.char(hexDigits[r>>8&0xF])
	c.char(hexDigits[r>>4&0xF])
	c.char(hexDigits[r&0xF])
}
