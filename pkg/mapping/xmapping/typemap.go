package xmapping

import (
	"fmt"
	"reflect"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TypeMap 是某个结构体类型的映射：扩展属性成员在构建时解析并校验，
// 之后的 Encode/Decode 不再产生配置类错误。
//
// 成员的三种形态：
//   - 带 bson:",inline" 的 map 字段：由驱动原生处理，TypeMap 直接透传；
//   - 其它字段：导出字段必须标记 bson:"-"，由 TypeMap 负责展开与收集；
//   - 方法：返回 map 的 getter，Decode 写入其返回的 map（不能为 nil）。
type TypeMap struct {
	typ    reflect.Type
	member *Member
	native bool
	known  map[string]struct{}
}

// NewTypeMap 为 t 构建映射。conv 为 nil 时不启用扩展属性。
// 约定返回的歧义或成员类型不合法都会在这里报告。
func NewTypeMap(t reflect.Type, conv ExtendedPropertiesConvention) (*TypeMap, error) {
	owner, err := structType(t)
	if err != nil {
		return nil, err
	}
	m := &TypeMap{typ: owner, known: make(map[string]struct{})}

	if conv != nil {
		member, err := conv.ExtendedPropertiesMember(owner)
		if err != nil {
			return nil, fmt.Errorf("xmapping: map %s: %w", owner, err)
		}
		if member != nil {
			if err := validateMember(owner, member); err != nil {
				return nil, err
			}
			m.member = member
			m.native = member.Kind == MemberField && inlineMember(owner, member)
		}
	}

	collectKeys(owner, nil, m.member, m.known)
	return m, nil
}

// TypeMapFor 是 NewTypeMap(reflect.TypeFor[T](), conv) 的简写。
func TypeMapFor[T any](conv ExtendedPropertiesConvention) (*TypeMap, error) {
	return NewTypeMap(reflect.TypeFor[T](), conv)
}

// Type 返回被映射的结构体类型。
func (m *TypeMap) Type() reflect.Type { return m.typ }

// Member 返回扩展属性成员，未启用时为 nil。
func (m *TypeMap) Member() *Member { return m.member }

// Known 报告 key 是否为已声明字段的键。
func (m *TypeMap) Known(key string) bool {
	_, ok := m.known[key]
	return ok
}

// Encode 将 v（T 或 *T）编码为文档，扩展属性按键名排序追加在已声明字段之后。
// 扩展属性的键与已声明字段冲突时返回 ErrKeyConflict。
func (m *TypeMap) Encode(v any) (bson.D, error) {
	ptr, err := m.pointer(v)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(ptr.Interface())
	if err != nil {
		return nil, fmt.Errorf("xmapping: encode %s: %w", m.typ, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("xmapping: encode %s: %w", m.typ, err)
	}
	if m.member == nil || m.native {
		return doc, nil
	}

	props, ok := m.member.value(ptr, false)
	if !ok || props.IsNil() || props.Len() == 0 {
		return doc, nil
	}
	keys := props.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	for _, k := range keys {
		key := k.String()
		if m.Known(key) {
			return nil, fmt.Errorf("%w: %s key %q", ErrKeyConflict, m.typ, key)
		}
		doc = append(doc, bson.E{Key: key, Value: props.MapIndex(k).Interface()})
	}
	return doc, nil
}

// Decode 将 raw 解码到 v（必须是 *T），未声明的键收集进扩展属性。
func (m *TypeMap) Decode(raw bson.Raw, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != m.typ {
		return fmt.Errorf("%w: want *%s, got %T", ErrTypeMismatch, m.typ, v)
	}
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("xmapping: decode %s: %w", m.typ, err)
	}
	if m.member == nil || m.native {
		return nil
	}

	elems, err := raw.Elements()
	if err != nil {
		return fmt.Errorf("xmapping: decode %s: %w", m.typ, err)
	}

	mapType := m.member.Type
	extra := reflect.MakeMap(mapType)
	for _, e := range elems {
		key := e.Key()
		if m.Known(key) {
			continue
		}
		var val any
		if err := e.Value().Unmarshal(&val); err != nil {
			return fmt.Errorf("xmapping: decode %s key %q: %w", m.typ, key, err)
		}
		elem := reflect.Zero(mapType.Elem())
		if val != nil {
			elem = reflect.ValueOf(val)
		}
		extra.SetMapIndex(reflect.ValueOf(key).Convert(mapType.Key()), elem)
	}

	if m.member.Kind == MemberMethod {
		props, _ := m.member.value(rv, false)
		if props.IsNil() {
			if extra.Len() == 0 {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNilProperties, m.member)
		}
		props.Clear()
		iter := extra.MapRange()
		for iter.Next() {
			props.SetMapIndex(iter.Key(), iter.Value())
		}
		return nil
	}

	props, _ := m.member.value(rv, true)
	if extra.Len() == 0 {
		props.Set(reflect.Zero(mapType))
		return nil
	}
	props.Set(extra)
	return nil
}

// pointer 返回指向 T 的指针；传入值时复制一份以便取址。
func (m *TypeMap) pointer(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem() == m.typ:
		return rv, nil
	case rv.IsValid() && rv.Type() == m.typ:
		cp := reflect.New(m.typ)
		cp.Elem().Set(rv)
		return cp, nil
	default:
		return reflect.Value{}, fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, m.typ, v)
	}
}

// validateMember 检查成员能否承载扩展属性。
func validateMember(owner reflect.Type, member *Member) error {
	if !isPropertiesMap(member.Type) {
		return fmt.Errorf("%w: %s has type %s, want map[string]any",
			ErrInvalidMember, member, member.Type)
	}
	if member.Kind != MemberField || !member.Exported {
		return nil
	}
	if member.BSONKey != "-" && !inlineMember(owner, member) {
		return fmt.Errorf(`%w: exported field %s must be tagged bson:"-" or bson:",inline"`,
			ErrInvalidMember, member)
	}
	return nil
}

func isPropertiesMap(t reflect.Type) bool {
	return t.Kind() == reflect.Map &&
		t.Key().Kind() == reflect.String &&
		t.Elem().Kind() == reflect.Interface &&
		t.Elem().NumMethod() == 0
}

func inlineMember(owner reflect.Type, member *Member) bool {
	sf := fieldByIndex(owner, member.Index)
	return tagInline(sf)
}

func fieldByIndex(t reflect.Type, index []int) reflect.StructField {
	var sf reflect.StructField
	for i, idx := range index {
		if i > 0 && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		sf = t.Field(idx)
		t = sf.Type
	}
	return sf
}

// collectKeys 收集 t 的已声明键，规则与驱动的结构体编解码一致：
// 只处理导出字段，跳过 "-"，带 inline 的结构体字段展开。
// 扩展属性成员本身不算已声明键。
func collectKeys(t reflect.Type, index []int, member *Member, into map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		path := append(append([]int(nil), index...), i)
		if member != nil && member.Kind == MemberField && slices.Equal(path, member.Index) {
			continue
		}
		if !sf.IsExported() {
			continue
		}
		key := bsonKey(sf)
		if key == "-" {
			continue
		}
		if tagInline(sf) {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectKeys(ft, path, member, into)
			}
			continue
		}
		into[key] = struct{}{}
	}
}
