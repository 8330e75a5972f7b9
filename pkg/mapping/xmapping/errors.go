package xmapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrEmptyName 表示约定的成员名为空。
	ErrEmptyName = errors.New("xmapping: empty member name")

	// ErrNotStruct 表示被映射的类型不是结构体（或结构体指针）。
	ErrNotStruct = errors.New("xmapping: mapped type is not a struct")

	// ErrAmbiguousMember 表示多个成员满足约定，属于配置错误。
	ErrAmbiguousMember = errors.New("xmapping: ambiguous extended properties member")

	// ErrInvalidMember 表示成员类型不能承载扩展属性。
	ErrInvalidMember = errors.New("xmapping: invalid extended properties member")

	// ErrNilConvention 表示未提供成员解析约定。
	ErrNilConvention = errors.New("xmapping: nil convention")

	// ErrKeyConflict 表示扩展属性的键与已声明字段的键冲突。
	ErrKeyConflict = errors.New("xmapping: extended property conflicts with mapped field")

	// ErrTypeMismatch 表示 Encode/Decode 的值与 TypeMap 的类型不一致。
	ErrTypeMismatch = errors.New("xmapping: value type does not match type map")

	// ErrNilProperties 表示方法成员返回了 nil map，无法写入扩展属性。
	ErrNilProperties = errors.New("xmapping: extended properties method returned nil map")
)

// AmbiguityError 描述一次歧义解析。errors.Is(err, ErrAmbiguousMember) 成立。
type AmbiguityError struct {
	Type       reflect.Type
	Name       string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("xmapping: %d members of %s match extended properties name %q: %s",
		len(e.Candidates), e.Type, e.Name, strings.Join(e.Candidates, ", "))
}

// Is 使 errors.Is(err, ErrAmbiguousMember) 成立。
func (e *AmbiguityError) Is(target error) bool {
	return target == ErrAmbiguousMember
}
