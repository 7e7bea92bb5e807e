package di

import "reflect"

// ResolveContext 记录一次解析调用的当前路径，用于检测循环依赖。
// 已解析的提供者通过全局缓存重复访问（菱形依赖）不算循环。
type ResolveContext struct {
	path []InstanceProvider
}

func newResolveContext() *ResolveContext {
	return &ResolveContext{}
}

// Path 返回当前解析路径上的类型
func (ctx *ResolveContext) Path() []reflect.Type {
	types := make([]reflect.Type, len(ctx.path))
	for i, p := range ctx.path {
		types[i] = p.Type()
	}
	return types
}

// visit 在路径上压入 p 并执行 fn，成功后将 *resolved 置为 true。
// 如果 p 已在路径上，返回带有完整环路的 CycleError。
func (ctx *ResolveContext) visit(p InstanceProvider, resolved *bool, fn func() error) error {
	if *resolved {
		return nil
	}

	for i, q := range ctx.path {
		if q == p {
			cycle := ctx.Path()[i:]
			return &CycleError{Path: append(cycle, p.Type())}
		}
	}

	ctx.path = append(ctx.path, p)
	defer func() {
		ctx.path = ctx.path[:len(ctx.path)-1]
	}()

	if err := fn(); err != nil {
		return err
	}

	*resolved = true
	return nil
}
