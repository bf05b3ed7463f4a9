package descriptor

// Kind 描述一个类型在序列化时的结构形态。
type Kind int

const (
	KindBoolean Kind = iota
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindChar
	KindString
	KindEnum
	KindClass
	KindList
	KindMap
	KindSealed
	KindOpen
	// KindNullable 是包装形态，真实结构由 Unwrap 返回的描述符决定。
	KindNullable
)

var kindNames = [...]string{
	KindBoolean:  "BOOLEAN",
	KindByte:     "BYTE",
	KindShort:    "SHORT",
	KindInt:      "INT",
	KindLong:     "LONG",
	KindFloat:    "FLOAT",
	KindDouble:   "DOUBLE",
	KindChar:     "CHAR",
	KindString:   "STRING",
	KindEnum:     "ENUM",
	KindClass:    "CLASS",
	KindList:     "LIST",
	KindMap:      "MAP",
	KindSealed:   "SEALED",
	KindOpen:     "OPEN",
	KindNullable: "NULLABLE",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// IsPrimitive 判断是否为叶子形态（包括枚举）。
func (k Kind) IsPrimitive() bool {
	return k <= KindEnum
}

// IsNumeric 判断是否为数值形态。
func (k Kind) IsNumeric() bool {
	return k >= KindByte && k <= KindDouble
}

// IsIntegral 判断是否为整数形态。
func (k Kind) IsIntegral() bool {
	return k >= KindByte && k <= KindLong
}

// IsPolymorphic 判断是否为多态形态。
func (k Kind) IsPolymorphic() bool {
	return k == KindSealed || k == KindOpen
}

// IsStructured 判断是否需要开启一个结构区域进行编码。
func (k Kind) IsStructured() bool {
	return k >= KindClass && k <= KindOpen
}
