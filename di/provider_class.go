package di

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/ioc/meta"
)

// fieldInjection 包含需要注入的结构体字段的元数据。
type fieldInjection struct {
	Index    int
	Name     string // 字段名
	Type     reflect.Type
	Optional bool
}

// ClassProvider 通过构造函数或结构体反射创建实例。
//
// 依赖来自三处：构造函数参数、带有 `di` 标签的字段、带有 Inject 标记的方法参数。
type ClassProvider struct {
	baseProvider

	impl     reflect.Type // 结构体注入时的结构体类型
	invoker  Invoker
	params   []reflect.Type
	fields   []fieldInjection
	value    any
	hasValue bool
}

func newClassProvider(r *Registry, typ reflect.Type, reg *registration) (*ClassProvider, error) {
	p := &ClassProvider{
		baseProvider: baseProvider{
			typ:       typ,
			eager:     reg.eager,
			singleton: reg.singleton,
			registry:  r,
		},
	}

	switch {
	case reg.hasValue:
		p.value = reg.value
		p.hasValue = true
		p.typ = reflect.TypeOf(reg.value)

	case reg.ctor != nil:
		fn, err := meta.DescribeFunc(reg.ctor)
		if err != nil {
			return nil, err
		}
		p.typ = fn.Result
		p.params = fn.Params
		p.invoker = newInvoker("constructor", fn)

	default:
		// 结构体注入：始终创建结构体指针
		impl := typ
		if impl.Kind() == reflect.Ptr {
			impl = impl.Elem()
		}
		if impl.Kind() != reflect.Struct {
			return nil, fmt.Errorf("di: %v needs a constructor, only structs can be created by reflection", typ)
		}
		p.impl = impl
	}

	p.module = reg.module
	if p.module == "" {
		p.module = meta.ModulePath(p.typ)
	}

	p.fields = analyzeFields(p.typ)
	return p, nil
}

// analyzeFields 解析带有 `di` 标签的字段
func analyzeFields(typ reflect.Type) []fieldInjection {
	// 解包指针
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}

	var fields []fieldInjection
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag || !field.IsExported() {
			continue
		}

		// 解析 tag: "optional" 或 "?"
		optional := false
		for _, part := range strings.Split(tagValue, ",") {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				optional = true
			}
		}

		fields = append(fields, fieldInjection{
			Index:    i,
			Name:     field.Name,
			Type:     field.Type,
			Optional: optional,
		})
	}
	return fields
}

// Resolve 实现 InstanceProvider
func (p *ClassProvider) Resolve(ctx *ResolveContext) error {
	types := append([]reflect.Type(nil), p.params...)

	var optional []reflect.Type
	for _, f := range p.fields {
		if f.Optional {
			optional = append(optional, f.Type)
		} else {
			types = append(types, f.Type)
		}
	}

	// 带有 Inject 标记的方法参数
	desc := p.registry.meta.Describe(p.typ)
	for _, m := range desc.MethodsWith(Inject{}) {
		types = append(types, m.Params...)
	}

	optional = append(optional, p.aspectTypes(p.typ)...)
	return p.resolveTypes(ctx, p, types, optional)
}

// Create 实现 InstanceProvider
func (p *ClassProvider) Create(c *Container) (*Instance, error) {
	var value any

	switch {
	case p.hasValue:
		value = p.value

	case p.invoker != nil:
		args := make([]reflect.Value, len(p.params))
		for i, t := range p.params {
			v, err := c.dependency(t)
			if err != nil {
				return nil, fmt.Errorf("参数 %d: %w", i, err)
			}
			args[i] = valueFor(v, t)
		}

		v, err := p.invoker(args)
		if err != nil {
			return nil, &CreationError{Type: p.typ, Err: err}
		}
		value = v

	default:
		value = reflect.New(p.impl).Interface()
	}

	if err := p.injectFields(c, value); err != nil {
		return nil, err
	}

	// 值类型注册：字段注入完成后再取值
	if p.impl != nil && p.typ.Kind() != reflect.Ptr {
		value = reflect.ValueOf(value).Elem().Interface()
	}

	return c.created(value)
}

func (p *ClassProvider) injectFields(c *Container, value any) error {
	if len(p.fields) == 0 {
		return nil
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	structVal := v.Elem()

	// 使用预计算的字段信息仅迭代需要注入的字段
	for _, f := range p.fields {
		dep, err := c.dependency(f.Type)
		if err != nil {
			if f.Optional {
				continue
			}
			return fmt.Errorf("字段 %s: %w", f.Name, err)
		}
		structVal.Field(f.Index).Set(valueFor(dep, f.Type))
	}
	return nil
}

func (p *ClassProvider) String() string {
	return describeProviders("ClassProvider", p.typ)
}
