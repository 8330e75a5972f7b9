package xmapping

import (
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultResolverCacheSize 是 Resolver 默认缓存的类型数量。
const DefaultResolverCacheSize = 256

// ResolverOption 配置 Resolver。
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	cacheSize int
}

// WithCacheSize 设置缓存容量，非正值被忽略。
func WithCacheSize(size int) ResolverOption {
	return func(o *resolverOptions) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}

// resolution 是一次解析的结果，错误同样被缓存：
// 同一类型在同一约定下的解析结果是确定的。
type resolution struct {
	member *Member
	err    error
}

// Resolver 缓存约定对每个类型的解析结果。并发安全。
type Resolver struct {
	conv  ExtendedPropertiesConvention
	cache *lru.Cache[reflect.Type, resolution]
	group singleflight.Group
}

// NewResolver 创建带缓存的解析器。
func NewResolver(conv ExtendedPropertiesConvention, opts ...ResolverOption) (*Resolver, error) {
	if conv == nil {
		return nil, ErrNilConvention
	}
	o := resolverOptions{cacheSize: DefaultResolverCacheSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cache, err := lru.New[reflect.Type, resolution](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("xmapping: create resolver cache: %w", err)
	}
	return &Resolver{conv: conv, cache: cache}, nil
}

// Resolve 返回 t 的扩展属性成员，语义与约定一致。
// t 为指针时按其元素类型缓存。
func (r *Resolver) Resolve(t reflect.Type) (*Member, error) {
	owner, err := structType(t)
	if err != nil {
		return nil, err
	}
	if res, ok := r.cache.Get(owner); ok {
		return res.member, res.err
	}

	v, _, _ := r.group.Do(typeKey(owner), func() (any, error) {
		if res, ok := r.cache.Get(owner); ok {
			return res, nil
		}
		m, err := r.conv.ExtendedPropertiesMember(owner)
		res := resolution{member: m, err: err}
		r.cache.Add(owner, res)
		return res, nil
	})
	res := v.(resolution)
	return res.member, res.err
}

// ExtendedPropertiesMember 使 Resolver 本身可以作为约定使用。
func (r *Resolver) ExtendedPropertiesMember(t reflect.Type) (*Member, error) {
	return r.Resolve(t)
}

// Len 返回已缓存的类型数量。
func (r *Resolver) Len() int { return r.cache.Len() }

// Purge 清空缓存。
func (r *Resolver) Purge() { r.cache.Purge() }

func typeKey(t reflect.Type) string {
	return t.PkgPath() + "\x00" + t.String()
}
