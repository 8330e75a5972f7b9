package xmapping

import (
	"reflect"
	"strings"
)

// ExtendedPropertiesConvention 为映射类型定位扩展属性成员。
//
// 实现约定：没有匹配返回 (nil, nil)；恰好一个返回该成员；
// 多于一个返回包装 ErrAmbiguousMember 的错误。
type ExtendedPropertiesConvention interface {
	ExtendedPropertiesMember(t reflect.Type) (*Member, error)
}

// ConventionFunc 将普通函数适配为 ExtendedPropertiesConvention。
type ConventionFunc func(t reflect.Type) (*Member, error)

// ExtendedPropertiesMember 调用 f(t)。
func (f ConventionFunc) ExtendedPropertiesMember(t reflect.Type) (*Member, error) {
	return f(t)
}

// ConventionOption 配置 NamedConvention。
type ConventionOption func(*NamedConvention)

// WithKinds 设置参与匹配的成员种类。0 值被忽略。
func WithKinds(kinds MemberKind) ConventionOption {
	return func(c *NamedConvention) {
		if kinds != 0 {
			c.kinds = kinds
		}
	}
}

// WithVisibility 设置参与匹配的可见性。0 值被忽略。
func WithVisibility(v Visibility) ConventionOption {
	return func(c *NamedConvention) {
		if v != 0 {
			c.visibility = v
		}
	}
}

// WithFoldCase 使名称比较忽略大小写。
func WithFoldCase() ConventionOption {
	return func(c *NamedConvention) {
		c.foldCase = true
	}
}

// WithBSONTag 使字段的 bson 键名也参与名称匹配。
func WithBSONTag() ConventionOption {
	return func(c *NamedConvention) {
		c.matchTag = true
	}
}

// NamedConvention 按名称定位扩展属性成员。
//
// 默认只匹配导出字段，名称区分大小写。
type NamedConvention struct {
	name       string
	kinds      MemberKind
	visibility Visibility
	foldCase   bool
	matchTag   bool
}

// NewNamedConvention 创建按名称匹配的约定。
func NewNamedConvention(name string, opts ...ConventionOption) (*NamedConvention, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	c := &NamedConvention{
		name:       name,
		kinds:      MemberField,
		visibility: Exported,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Name 返回约定的成员名。
func (c *NamedConvention) Name() string { return c.name }

// Kinds 返回参与匹配的成员种类。
func (c *NamedConvention) Kinds() MemberKind { return c.kinds }

// Visibility 返回参与匹配的可见性。
func (c *NamedConvention) Visibility() Visibility { return c.visibility }

// ExtendedPropertiesMember 在 t（结构体或结构体指针）上定位扩展属性成员。
//
// 字段按嵌入深度广度优先查找，最浅一层有匹配即停止；
// 方法取自 *t 的方法集，只考虑无参、单返回值的方法。
// 两类候选合计多于一个时返回 *AmbiguityError。
func (c *NamedConvention) ExtendedPropertiesMember(t reflect.Type) (*Member, error) {
	owner, err := structType(t)
	if err != nil {
		return nil, err
	}

	var candidates []*Member
	if c.kinds&MemberField != 0 {
		candidates = append(candidates, c.matchFields(owner)...)
	}
	if c.kinds&MemberMethod != 0 && c.visibility&Exported != 0 {
		candidates = append(candidates, c.matchMethods(owner)...)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, m := range candidates {
			names[i] = m.String()
		}
		return nil, &AmbiguityError{Type: owner, Name: c.name, Candidates: names}
	}
}

type embedded struct {
	typ   reflect.Type
	index []int
}

func (c *NamedConvention) matchFields(owner reflect.Type) []*Member {
	level := []embedded{{typ: owner}}
	visited := make(map[reflect.Type]bool)

	for depth := 0; len(level) > 0; depth++ {
		var matches []*Member
		var next []embedded

		for _, e := range level {
			if visited[e.typ] {
				continue
			}
			for i := 0; i < e.typ.NumField(); i++ {
				sf := e.typ.Field(i)
				index := append(append([]int(nil), e.index...), i)

				if c.matchField(sf) {
					matches = append(matches, &Member{
						Owner:    owner,
						Name:     sf.Name,
						Kind:     MemberField,
						Type:     sf.Type,
						Index:    index,
						Depth:    depth,
						BSONKey:  bsonKey(sf),
						Exported: sf.IsExported(),
					})
				}

				if sf.Anonymous {
					ft := sf.Type
					if ft.Kind() == reflect.Pointer {
						ft = ft.Elem()
					}
					if ft.Kind() == reflect.Struct {
						next = append(next, embedded{typ: ft, index: index})
					}
				}
			}
		}
		if len(matches) > 0 {
			return matches
		}
		for _, e := range level {
			visited[e.typ] = true
		}
		level = next
	}
	return nil
}

func (c *NamedConvention) matchField(sf reflect.StructField) bool {
	if !c.visible(sf.IsExported()) {
		return false
	}
	if c.equal(sf.Name) {
		return true
	}
	if c.matchTag {
		if key, ok := tagKey(sf); ok && c.equal(key) {
			return true
		}
	}
	return false
}

func (c *NamedConvention) matchMethods(owner reflect.Type) []*Member {
	pt := reflect.PointerTo(owner)
	var matches []*Member
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		// 接收者计入 NumIn。
		if m.Type.NumIn() != 1 || m.Type.NumOut() != 1 {
			continue
		}
		if !c.equal(m.Name) {
			continue
		}
		matches = append(matches, &Member{
			Owner:    owner,
			Name:     m.Name,
			Kind:     MemberMethod,
			Type:     m.Type.Out(0),
			Exported: true,
		})
	}
	return matches
}

func (c *NamedConvention) visible(exported bool) bool {
	if exported {
		return c.visibility&Exported != 0
	}
	return c.visibility&Unexported != 0
}

func (c *NamedConvention) equal(s string) bool {
	if c.foldCase {
		return strings.EqualFold(s, c.name)
	}
	return s == c.name
}

// structType 解引用指针并确认是结构体。
func structType(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, ErrNotStruct
	}
	return t, nil
}

// tagKey 返回 bson 标签中显式声明的键名。
func tagKey(sf reflect.StructField) (string, bool) {
	tag, ok := sf.Tag.Lookup("bson")
	if !ok {
		return "", false
	}
	key, _, _ := strings.Cut(tag, ",")
	if key == "" || key == "-" {
		return "", false
	}
	return key, true
}

// bsonKey 返回字段在文档中的键名，与驱动默认的结构体编解码一致：
// 标签优先，否则为字段名的小写形式。"-" 表示不参与编解码。
func bsonKey(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("bson"); ok {
		key, _, _ := strings.Cut(tag, ",")
		if key == "-" {
			return "-"
		}
		if key != "" {
			return key
		}
	}
	return strings.ToLower(sf.Name)
}

// tagInline 报告字段是否带 inline 标记。
func tagInline(sf reflect.StructField) bool {
	tag, ok := sf.Tag.Lookup("bson")
	if !ok {
		return false
	}
	_, opts, _ := strings.Cut(tag, ",")
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == "inline" {
			return true
		}
	}
	return false
}
