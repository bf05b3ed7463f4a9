package serial

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// DefaultMaxDepth 为区域栈默认的最大嵌套深度。
const DefaultMaxDepth = 512

// Frame 记录一个已打开区域的状态。
type Frame struct {
	Descriptor descriptor.Descriptor
	// Size 为集合的预期元素个数（映射为键值对数目的两倍），未知时为 UnknownSize。
	Size int

	kind    descriptor.Kind
	next    int
	current int
	marked  *bitset.BitSet
	label   string
}

// Current 返回最近一次标记的元素下标，尚未标记任何元素时返回 -1。
func (f *Frame) Current() int {
	return f.current
}

// SetKey 记录类区域中刚读到、尚未对应到元素的键。在下一次标记元素之前，路径以该键结尾。
// 其他区域忽略该调用。
func (f *Frame) SetKey(name string) {
	if f.kind != descriptor.KindClass {
		return
	}
	f.current = -1
	f.label = name
}

// Count 返回已标记的元素个数。
func (f *Frame) Count() int {
	if f.isCollection() {
		return f.next
	}
	return int(f.marked.Count())
}

// Marked 判断第 i 个元素是否已被标记。
func (f *Frame) Marked(i int) bool {
	if f.isCollection() {
		return i >= 0 && i < f.next
	}
	return f.marked.Test(uint(i))
}

// SetLabel 设置该区域在路径中的附加标签，例如映射中当前键的文本。
func (f *Frame) SetLabel(label string) {
	f.label = label
}

func (f *Frame) isCollection() bool {
	return f.kind == descriptor.KindList || f.kind == descriptor.KindMap
}

// RegionStack 是编解码会话中已打开结构区域的显式栈。
// 它不是并发安全的，每个会话各自持有一个实例。
type RegionStack struct {
	frames   []Frame
	maxDepth int
}

// NewRegionStack 创建一个区域栈，maxDepth <= 0 时使用 DefaultMaxDepth。
func NewRegionStack(maxDepth int) *RegionStack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &RegionStack{
		frames:   make([]Frame, 0, 8),
		maxDepth: maxDepth,
	}
}

// Depth 返回当前打开的区域个数。
func (s *RegionStack) Depth() int {
	return len(s.frames)
}

// Expect 确认在第 depth 层打开的区域仍是最内层区域。
// 内层区域关闭之前继续读写外层区域的元素属于协议误用。
func (s *RegionStack) Expect(depth int) error {
	if len(s.frames) == depth {
		return nil
	}
	name := "<none>"
	if depth > 0 && depth <= len(s.frames) {
		name = s.frames[depth-1].Descriptor.SerialName()
	}
	return merr.WrapErrProtocolMisuse("region is not the innermost open region", name,
		"depth="+strconv.Itoa(depth), "open="+strconv.Itoa(len(s.frames)))
}

// Top 返回最内层的区域，栈为空时返回 nil。
func (s *RegionStack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Push 打开一个新区域。
// 之前通过 Top 取得的 *Frame 在 Push 之后不再有效。
func (s *RegionStack) Push(d descriptor.Descriptor, size int) error {
	if len(s.frames) >= s.maxDepth {
		return merr.WrapErrDepthExceeded(len(s.frames)+1, s.maxDepth)
	}
	inner := d.Unwrap()
	f := Frame{
		Descriptor: inner,
		Size:       size,
		kind:       inner.Kind(),
		current:    -1,
	}
	if !f.isCollection() {
		f.marked = bitset.New(uint(inner.ElementsCount()))
	}
	s.frames = append(s.frames, f)
	return nil
}

// Pop 关闭最内层区域。d 必须与打开该区域时使用的描述符一致。
func (s *RegionStack) Pop(d descriptor.Descriptor) (Frame, error) {
	top := s.Top()
	if top == nil {
		return Frame{}, merr.WrapErrProtocolMisuse("endStructure without matching beginStructure", d.SerialName())
	}
	if top.Descriptor != d.Unwrap() {
		return Frame{}, merr.WrapErrProtocolMisuse("endStructure does not match the innermost region",
			"open="+top.Descriptor.SerialName(), "end="+d.SerialName())
	}
	f := *top
	s.frames = s.frames[:len(s.frames)-1]
	return f, nil
}

// MarkEncoded 记录最内层区域第 i 个元素即将被写入。
// 重复写入同一下标、下标越界或集合下标不连续都属于协议误用。
func (s *RegionStack) MarkEncoded(i int) error {
	f := s.Top()
	if f == nil {
		return merr.WrapErrProtocolMisuse("encodeElement outside of any region")
	}
	if f.isCollection() {
		if i != f.next {
			return merr.WrapErrProtocolMisuse("collection elements must be encoded in order",
				"expected="+strconv.Itoa(f.next), "actual="+strconv.Itoa(i))
		}
		if f.Size >= 0 && i >= f.Size {
			return merr.WrapErrProtocolMisuse("collection element beyond declared size",
				f.Descriptor.SerialName(), "index="+strconv.Itoa(i))
		}
		f.next++
		f.current = i
		return nil
	}
	if i < 0 || i >= f.Descriptor.ElementsCount() {
		return merr.WrapErrProtocolMisuse("element index out of range", f.Descriptor.SerialName(), "index="+strconv.Itoa(i))
	}
	if f.marked.Test(uint(i)) {
		return merr.WrapErrProtocolMisuse("element encoded twice", f.Descriptor.SerialName(), f.Descriptor.ElementName(i))
	}
	f.marked.Set(uint(i))
	f.current = i
	return nil
}

// MarkDecoded 记录最内层区域第 i 个元素已从数据中读到。
// 非集合区域中同一元素出现两次是模式错误。
func (s *RegionStack) MarkDecoded(i int) error {
	f := s.Top()
	if f == nil {
		return merr.WrapErrProtocolMisuse("decodeElementIndex outside of any region")
	}
	if f.isCollection() {
		f.next = i + 1
		f.current = i
		return nil
	}
	if i < 0 || i >= f.Descriptor.ElementsCount() {
		return merr.WrapErrProtocolMisuse("element index out of range", f.Descriptor.SerialName(), "index="+strconv.Itoa(i))
	}
	if f.marked.Test(uint(i)) {
		return merr.WrapErrDuplicateElement(f.Descriptor.SerialName(), f.Descriptor.ElementName(i))
	}
	f.marked.Set(uint(i))
	f.current = i
	return nil
}

// Missing 返回区域 f 中未读到的必需元素名。
// absentNullableIsNull 为 true 时，缺失的可空元素视为 null 而不算缺失。
func Missing(f Frame, absentNullableIsNull bool) []string {
	if f.kind != descriptor.KindClass {
		return nil
	}
	var missing []string
	d := f.Descriptor
	for i := 0; i < d.ElementsCount(); i++ {
		if f.marked.Test(uint(i)) || d.IsElementOptional(i) {
			continue
		}
		if absentNullableIsNull && d.IsElementNullable(i) {
			continue
		}
		missing = append(missing, d.ElementName(i))
	}
	return missing
}

// CheckMissing 在 f 存在缺失的必需元素时返回 ErrMissingField。
func CheckMissing(f Frame, absentNullableIsNull bool) error {
	if missing := Missing(f, absentNullableIsNull); len(missing) > 0 {
		return merr.WrapErrMissingField(f.Descriptor.SerialName(), missing...)
	}
	return nil
}

// Path 返回当前位置的路径表示，例如 $.users[2].name。
func (s *RegionStack) Path() string {
	var sb strings.Builder
	sb.WriteString("$")
	for i := range s.frames {
		f := &s.frames[i]
		if f.current < 0 {
			if f.kind == descriptor.KindClass && f.label != "" {
				sb.WriteString(".")
				sb.WriteString(f.label)
			}
			continue
		}
		switch f.kind {
		case descriptor.KindList:
			sb.WriteString("[")
			sb.WriteString(strconv.Itoa(f.current))
			sb.WriteString("]")
		case descriptor.KindMap:
			if f.label != "" {
				sb.WriteString("[")
				sb.WriteString(strconv.Quote(f.label))
				sb.WriteString("]")
			} else {
				sb.WriteString("[")
				sb.WriteString(strconv.Itoa(f.current / 2))
				sb.WriteString("]")
			}
		case descriptor.KindSealed, descriptor.KindOpen:
			if f.label != "" {
				sb.WriteString("<")
				sb.WriteString(f.label)
				sb.WriteString(">")
			}
		default:
			sb.WriteString(".")
			sb.WriteString(f.Descriptor.ElementName(f.current))
		}
	}
	return sb.String()
}
