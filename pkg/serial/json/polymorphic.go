package json

import (
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// DecodePolymorphic 先完整捕获对象的原始字节并查找鉴别字段，鉴别字段可以位于任意位置；
// 确定子类型后在捕获的字节上重新解码负载，并跳过其中的鉴别字段。
func (d *decoder) DecodePolymorphic(base descriptor.Descriptor, resolve serial.SubtypeResolver, payload func(serial.Subtype, serial.Decoder) error) error {
	if d.key != nil {
		return merr.WrapErrUnsupportedShape(formatName, base.SerialName(), "polymorphic values cannot be map keys")
	}
	if d.sess.conf.UseArrayPolymorphism {
		return serial.DecodePolymorphicDefault(d, base, resolve, payload)
	}
	lex := d.lex()
	t, err := lex.peek()
	if err != nil {
		return err
	}
	if t.kind != tokBeginObject {
		return lex.unexpected(t, "object for "+base.SerialName())
	}
	raw, start, err := lex.captureValue()
	if err != nil {
		return err
	}

	key := d.sess.f.discriminatorKey(base)
	scan := newBytesLexer(raw, start, lex.lenient, lex.maxDepth)
	scan.path = d.sess.stack.Path
	disc, found, err := findDiscriminator(scan, key)
	if err != nil {
		return err
	}
	if !found {
		return merr.WrapErrMissingDiscriminator(base.SerialName(), key)
	}
	sub, err := resolve(disc)
	if err != nil {
		return err
	}

	restore := d.sess.swap(newBytesLexer(raw, start, lex.lenient, lex.maxDepth))
	defer restore()
	pd := &decoder{sess: d.sess}
	if sub.IsClass() {
		d.sess.pending = key
		err = payload(sub, pd)
	} else {
		err = serial.DecodePolymorphicDefault(pd, base, resolve, payload)
	}
	if err != nil {
		return err
	}
	return d.sess.expectEOF()
}

// findDiscriminator 在对象的顶层键中查找 key，返回其字符串值。
func findDiscriminator(scan *lexer, key string) (string, bool, error) {
	if _, err := scan.expect(tokBeginObject); err != nil {
		return "", false, err
	}
	for first := true; ; first = false {
		t, err := scan.next()
		if err != nil {
			return "", false, err
		}
		if !first && t.kind != tokEndObject {
			if t.kind != tokComma {
				return "", false, scan.unexpected(t, "',' or '}'")
			}
			if t, err = scan.next(); err != nil {
				return "", false, err
			}
			if t.kind == tokEndObject && !scan.lenient {
				return "", false, scan.malformed(t.offset, "trailing comma")
			}
		}
		if t.kind == tokEndObject {
			return "", false, nil
		}
		if !t.stringLike(scan.lenient) {
			return "", false, scan.unexpected(t, "object key")
		}
		if _, err := scan.expect(tokColon); err != nil {
			return "", false, err
		}
		if t.text != key {
			if err := scan.skipValue(); err != nil {
				return "", false, err
			}
			continue
		}
		v, err := scan.next()
		if err != nil {
			return "", false, err
		}
		if v.kind == tokString || scan.lenient && v.kind == tokLiteral {
			return v.text, true, nil
		}
		return "", false, scan.unexpected(v, "discriminator string")
	}
}
