package json

import (
	"io"
	"iter"

	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/serial"
)

// DecodeSequence 惰性地读取 r 中的一串值。输入以 '[' 开头时视为数组包裹的序列，
// 否则视为以空白分隔的多个顶层值。遇到第一个错误后迭代结束。
//
//	for v, err := range json.DecodeSequence(f, r, s) {
//		if err != nil {
//			return err
//		}
//		// 处理 v
//	}
func DecodeSequence[T any](f *Format, r io.Reader, s serial.Serializer[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		lex := newReaderLexer(r, f.conf.IsLenient, f.conf.MaxDepth)
		sess := f.newDecodeSession(lex)
		var err error
		defer func() {
			f.observe(metrics.OpDecode, lex.offset(), err, sess.stack)
		}()
		fail := func(e error) {
			err = e
			var zero T
			yield(zero, e)
		}

		t, err := lex.peek()
		if err != nil {
			fail(err)
			return
		}
		wrapped := t.kind == tokBeginArray
		if wrapped {
			_, _ = lex.next()
		}
		for first := true; ; first = false {
			if wrapped {
				ok, e := nextMember(lex, tokEndArray, first)
				if e != nil {
					fail(e)
					return
				}
				if !ok {
					if e := sess.expectEOF(); e != nil {
						fail(e)
					}
					return
				}
			} else {
				t, e := lex.peek()
				if e != nil {
					fail(e)
					return
				}
				if t.kind == tokEOF {
					return
				}
			}
			v, e := s.Deserialize(sess.root())
			if e != nil {
				fail(e)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
