package xmapping

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"
)

// MemberKind 是成员种类的位集合。
type MemberKind uint8

const (
	// MemberField 结构体字段（含嵌入提升的字段）。
	MemberField MemberKind = 1 << iota
	// MemberMethod 无参、单返回值的方法。
	MemberMethod
)

// String 返回成员种类的可读名称。
func (k MemberKind) String() string {
	var parts []string
	if k&MemberField != 0 {
		parts = append(parts, "field")
	}
	if k&MemberMethod != 0 {
		parts = append(parts, "method")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Visibility 是成员可见性的位集合。
type Visibility uint8

const (
	// Exported 导出成员。
	Exported Visibility = 1 << iota
	// Unexported 未导出成员。反射无法枚举未导出方法，因此只对字段生效。
	Unexported
)

// Member 描述解析出的扩展属性成员。
type Member struct {
	// Owner 是声明该成员的映射类型（已解引用）。
	Owner reflect.Type
	// Name 是成员的 Go 名称。
	Name string
	// Kind 是 MemberField 或 MemberMethod 之一。
	Kind MemberKind
	// Type 是字段类型或方法返回值类型。
	Type reflect.Type
	// Index 是字段相对 Owner 的索引路径，方法成员为 nil。
	Index []int
	// Depth 是字段所在的嵌入深度，顶层为 0。
	Depth int
	// BSONKey 是字段在文档中的键名，方法成员为空。
	BSONKey string
	// Exported 表示成员是否导出。
	Exported bool
}

// String 返回 "Owner.Name" 形式的描述。
func (m *Member) String() string {
	if m == nil {
		return "<nil>"
	}
	if m.Kind == MemberMethod {
		return fmt.Sprintf("%s.%s()", m.Owner, m.Name)
	}
	return fmt.Sprintf("%s.%s", m.Owner, m.Name)
}

// value 返回 ptr（指向 Owner 的指针）上该成员的值。
// alloc 为 true 时沿途为 nil 的嵌入指针会被分配，用于写入。
// 返回的 Value 对未导出字段也可读写。
func (m *Member) value(ptr reflect.Value, alloc bool) (reflect.Value, bool) {
	if m.Kind == MemberMethod {
		out := ptr.MethodByName(m.Name).Call(nil)
		return out[0], true
	}

	v := ptr.Elem()
	for i, idx := range m.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v = settable(v)
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return settable(v), true
}

// settable 让未导出字段可读写。v 必须可寻址。
func settable(v reflect.Value) reflect.Value {
	if v.CanSet() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}
