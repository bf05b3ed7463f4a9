package json

import (
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// chunkSize 为从 io.Reader 每次读取的块大小。
const chunkSize = 4096

const (
	nanLiteral    = "NaN"
	infLiteral    = "Infinity"
	negInfLiteral = "-Infinity"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokBeginObject
	tokEndObject
	tokBeginArray
	tokEndArray
	tokColon
	tokComma
	tokString
	tokNumber
	tokTrue
	tokFalse
	tokNull
	// tokLiteral 是宽松模式下不带引号的字面量。
	tokLiteral
)

var tokenNames = [...]string{
	tokEOF:         "end of input",
	tokBeginObject: "'{'",
	tokEndObject:   "'}'",
	tokBeginArray:  "'['",
	tokEndArray:    "']'",
	tokColon:       "':'",
	tokComma:       "','",
	tokString:      "string",
	tokNumber:      "number",
	tokTrue:        "boolean",
	tokFalse:       "boolean",
	tokNull:        "null",
	tokLiteral:     "literal",
}

func (k tokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "token(" + strconv.Itoa(int(k)) + ")"
}

type token struct {
	kind tokenKind
	// text 为字符串解码后的内容、数字或字面量的原文。
	text   string
	offset int64
}

// stringLike 判断 token 能否作为字符串值：宽松模式下不带引号的字面量也可以。
func (t token) stringLike(lenient bool) bool {
	switch t.kind {
	case tokString:
		return true
	case tokLiteral, tokNumber, tokTrue, tokFalse:
		return lenient
	}
	return false
}

func (t token) describe() string {
	switch t.kind {
	case tokString:
		return "string " + strconv.Quote(truncate(t.text))
	case tokNumber, tokLiteral:
		return t.kind.String() + " " + truncate(t.text)
	}
	return t.kind.String()
}

func truncate(s string) string {
	const limit = 32
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// lexer 是拉取式的 JSON 词法分析器。输入按块读入一个滑动窗口，
// 已消费的部分在下一次读取时被丢弃，mark 与 hold 标记的位置之后的数据会被保留。
type lexer struct {
	r    io.Reader
	buf  []byte
	pos  int
	base int64 // buf[0] 在输入中的偏移
	eof  bool
	err  error
	// mark 为正在捕获的值的起始偏移，hold 为正在扫描的 token 的起始偏移，-1 表示无。
	mark int64
	hold int64

	peeked   bool
	tok      token
	lenient  bool
	maxDepth int
	path     func() string
	scratch  []byte
}

func newReaderLexer(r io.Reader, lenient bool, maxDepth int) *lexer {
	return &lexer{
		r:        r,
		buf:      make([]byte, 0, chunkSize),
		mark:     -1,
		hold:     -1,
		lenient:  lenient,
		maxDepth: maxDepth,
	}
}

// newBytesLexer 在完整的 data 上扫描，base 为 data[0] 在原始输入中的偏移。
func newBytesLexer(data []byte, base int64, lenient bool, maxDepth int) *lexer {
	return &lexer{
		buf:      data,
		base:     base,
		eof:      true,
		mark:     -1,
		hold:     -1,
		lenient:  lenient,
		maxDepth: maxDepth,
	}
}

// offset 返回已消费输入的偏移。
func (l *lexer) offset() int64 {
	return l.base + int64(l.pos)
}

func (l *lexer) currentPath() string {
	if l.path == nil {
		return "$"
	}
	return l.path()
}

func (l *lexer) fill() bool {
	if l.eof || l.err != nil {
		return false
	}
	keep := l.pos
	for _, m := range [...]int64{l.mark, l.hold} {
		if m >= 0 && int(m-l.base) < keep {
			keep = int(m - l.base)
		}
	}
	if keep > 0 {
		n := copy(l.buf, l.buf[keep:])
		l.buf = l.buf[:n]
		l.pos -= keep
		l.base += int64(keep)
	}
	if cap(l.buf)-len(l.buf) < chunkSize/2 {
		nb := make([]byte, len(l.buf), 2*cap(l.buf)+chunkSize)
		copy(nb, l.buf)
		l.buf = nb
	}
	for {
		n, err := l.r.Read(l.buf[len(l.buf):cap(l.buf)])
		l.buf = l.buf[:len(l.buf)+n]
		if err == io.EOF {
			l.eof = true
		} else if err != nil {
			l.err = err
		}
		if n > 0 {
			return true
		}
		if l.eof || l.err != nil {
			return false
		}
	}
}

// ensure 保证窗口中至少还有 n 个未消费的字节。
func (l *lexer) ensure(n int) bool {
	for len(l.buf)-l.pos < n {
		if !l.fill() {
			return false
		}
	}
	return true
}

func (l *lexer) endOfInput(msg string) error {
	if l.err != nil {
		return merr.WrapErrIoFailed(l.err)
	}
	return merr.WrapErrUnexpectedEOF(l.currentPath(), l.offset(), msg)
}

func (l *lexer) malformed(offset int64, reason string) error {
	return merr.WrapErrMalformedInput(l.currentPath(), offset, reason)
}

func (l *lexer) unexpected(t token, expected string) error {
	if t.kind == tokEOF {
		return merr.WrapErrUnexpectedEOF(l.currentPath(), t.offset, "expected "+expected)
	}
	return merr.WrapErrUnexpectedToken(l.currentPath(), t.offset, expected, t.describe())
}

func (l *lexer) peek() (token, error) {
	if l.peeked {
		return l.tok, nil
	}
	t, err := l.scan()
	if err != nil {
		return token{}, err
	}
	l.tok, l.peeked = t, true
	return t, nil
}

func (l *lexer) next() (token, error) {
	t, err := l.peek()
	l.peeked = false
	return t, err
}

// expect 消费下一个 token，其类别必须为 kind。
func (l *lexer) expect(kind tokenKind) (token, error) {
	t, err := l.next()
	if err != nil {
		return t, err
	}
	if t.kind != kind {
		return t, l.unexpected(t, kind.String())
	}
	return t, nil
}

func (l *lexer) skipWhitespace() {
	for l.ensure(1) {
		switch l.buf[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) scan() (token, error) {
	l.skipWhitespace()
	if !l.ensure(1) {
		if l.err != nil {
			return token{}, merr.WrapErrIoFailed(l.err)
		}
		return token{kind: tokEOF, offset: l.offset()}, nil
	}
	start := l.offset()
	var kind tokenKind
	switch l.buf[l.pos] {
	case '{':
		kind = tokBeginObject
	case '}':
		kind = tokEndObject
	case '[':
		kind = tokBeginArray
	case ']':
		kind = tokEndArray
	case ':':
		kind = tokColon
	case ',':
		kind = tokComma
	case '"':
		return l.scanString(start)
	default:
		return l.scanLiteral(start)
	}
	l.pos++
	return token{kind: kind, offset: start}, nil
}

func (l *lexer) scanString(start int64) (token, error) {
	l.pos++
	l.scratch = l.scratch[:0]
	for {
		if !l.ensure(1) {
			return token{}, l.endOfInput("unterminated string")
		}
		c := l.buf[l.pos]
		switch {
		case c == '"':
			l.pos++
			return token{kind: tokString, text: string(l.scratch), offset: start}, nil
		case c == '\\':
			l.pos++
			if err := l.scanEscape(); err != nil {
				return token{}, err
			}
		case c < 0x20 && !l.lenient:
			return token{}, l.malformed(l.offset(), "control character in string")
		default:
			l.scratch = append(l.scratch, c)
			l.pos++
		}
	}
}

func (l *lexer) scanEscape() error {
	if !l.ensure(1) {
		return l.endOfInput("unterminated escape sequence")
	}
	e := l.buf[l.pos]
	l.pos++
	switch e {
	case '"', '\\', '/':
		l.scratch = append(l.scratch, e)
	case 'b':
		l.scratch = append(l.scratch, '\b')
	case 'f':
		l.scratch = append(l.scratch, '\f')
	case 'n':
		l.scratch = append(l.scratch, '\n')
	case 'r':
		l.scratch = append(l.scratch, '\r')
	case 't':
		l.scratch = append(l.scratch, '\t')
	case 'u':
		r, err := l.scanHex4()
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) {
			// 只有后面紧跟合法的低位代理时才消费第二个转义，否则它按独立的转义处理。
			pair := utf8.RuneError
			if l.ensure(6) && l.buf[l.pos] == '\\' && l.buf[l.pos+1] == 'u' {
				if low, ok := parseHex4(l.buf[l.pos+2 : l.pos+6]); ok {
					pair = utf16.DecodeRune(r, low)
				}
			}
			if pair != utf8.RuneError {
				l.pos += 6
			}
			r = pair
		}
		l.scratch = utf8.AppendRune(l.scratch, r)
	default:
		return l.malformed(l.offset()-1, "invalid escape character "+strconv.QuoteRune(rune(e)))
	}
	return nil
}

func (l *lexer) scanHex4() (rune, error) {
	if !l.ensure(4) {
		return 0, l.endOfInput("unterminated unicode escape")
	}
	r, ok := parseHex4(l.buf[l.pos : l.pos+4])
	if !ok {
		return 0, l.malformed(l.offset(), "invalid unicode escape")
	}
	l.pos += 4
	return r, nil
}

func parseHex4(b []byte) (rune, bool) {
	var r rune
	for _, c := range b {
		r <<= 4
		switch {
		case '0' <= c && c <= '9':
			r |= rune(c - '0')
		case 'a' <= c && c <= 'f':
			r |= rune(c - 'a' + 10)
		case 'A' <= c && c <= 'F':
			r |= rune(c - 'A' + 10)
		default:
			return 0, false
		}
	}
	return r, true
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '{', '}', '[', ']', ':', ',', '"':
		return true
	}
	return false
}

func (l *lexer) scanLiteral(start int64) (token, error) {
	l.hold = start
	defer func() { l.hold = -1 }()
	for l.ensure(1) && !isDelimiter(l.buf[l.pos]) {
		l.pos++
	}
	if l.err != nil {
		return token{}, merr.WrapErrIoFailed(l.err)
	}
	text := string(l.buf[start-l.base : l.pos])
	switch {
	case text == "true":
		return token{kind: tokTrue, text: text, offset: start}, nil
	case text == "false":
		return token{kind: tokFalse, text: text, offset: start}, nil
	case text == "null":
		return token{kind: tokNull, text: text, offset: start}, nil
	case isNumber(text):
		return token{kind: tokNumber, text: text, offset: start}, nil
	case l.lenient:
		return token{kind: tokLiteral, text: text, offset: start}, nil
	}
	return token{}, l.malformed(start, "unexpected literal "+strconv.Quote(truncate(text)))
}

// isNumber 按 JSON 语法校验数字字面量。
func isNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	switch {
	case i < len(s) && s[i] == '0':
		i++
	case i < len(s) && '1' <= s[i] && s[i] <= '9':
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		if i >= len(s) || !isDigit(s[i]) {
			return false
		}
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if i >= len(s) || !isDigit(s[i]) {
			return false
		}
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// skipValue 跳过下一个完整的值，被跳过的部分同样按语法检查键、冒号与逗号。
func (l *lexer) skipValue() error {
	return l.skipNested(1)
}

// skipNested 跳过一个值，depth 为它是对象或数组时所在的嵌套层数。
func (l *lexer) skipNested(depth int) error {
	t, err := l.next()
	if err != nil {
		return err
	}
	var end tokenKind
	switch t.kind {
	case tokString, tokNumber, tokTrue, tokFalse, tokNull, tokLiteral:
		return nil
	case tokBeginObject:
		end = tokEndObject
	case tokBeginArray:
		end = tokEndArray
	default:
		return l.unexpected(t, "value")
	}
	if depth > l.maxDepth {
		return merr.WrapErrDepthExceeded(depth, l.maxDepth)
	}
	for first := true; ; first = false {
		ok, err := nextMember(l, end, first)
		if err != nil || !ok {
			return err
		}
		if end == tokEndObject {
			k, err := l.next()
			if err != nil {
				return err
			}
			if !k.stringLike(l.lenient) {
				return l.unexpected(k, "object key")
			}
			if _, err := l.expect(tokColon); err != nil {
				return err
			}
		}
		if err := l.skipNested(depth + 1); err != nil {
			return err
		}
	}
}

// captureValue 跳过下一个值并返回它的原始字节及起始偏移。
func (l *lexer) captureValue() ([]byte, int64, error) {
	t, err := l.peek()
	if err != nil {
		return nil, 0, err
	}
	l.mark = t.offset
	defer func() { l.mark = -1 }()
	if err := l.skipValue(); err != nil {
		return nil, 0, err
	}
	raw := append([]byte(nil), l.buf[t.offset-l.base:l.pos]...)
	return raw, t.offset, nil
}
