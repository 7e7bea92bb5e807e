package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/ioc/meta"
)

var (
	// ErrRegistryResolved 在注册表完成解析后继续注册时返回
	ErrRegistryResolved = errors.New("di: registry already resolved, registration is closed")
	// ErrDestroyed 在容器销毁后继续使用时返回
	ErrDestroyed = errors.New("di: container destroyed")
)

// RegistrationError 同一具体类型被注册了多次
type RegistrationError struct {
	Type     reflect.Type
	Existing string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("di: %v already registered by %s", e.Type, e.Existing)
}

// NotRegisteredError 依赖或请求的类型没有提供者
type NotRegisteredError struct {
	Type       reflect.Type
	RequiredBy reflect.Type
}

func (e *NotRegisteredError) Error() string {
	if e.RequiredBy != nil {
		return fmt.Sprintf("di: %v not registered (required by %v)", e.Type, e.RequiredBy)
	}
	return fmt.Sprintf("di: %v not registered", e.Type)
}

// AmbiguousDependencyError 请求的类型匹配了多个具体提供者
type AmbiguousDependencyError struct {
	Type       reflect.Type
	Candidates []reflect.Type
}

func (e *AmbiguousDependencyError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("di: ambiguous dependency %v, candidates: [%s]", e.Type, strings.Join(names, ", "))
}

// CycleError 解析过程中出现循环依赖，Path 的首尾为同一类型
type CycleError struct {
	Path []reflect.Type
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Path))
	for i, t := range e.Path {
		names[i] = meta.ShortName(t)
	}
	return "di: cycle detected: " + strings.Join(names, " -> ")
}

// NotSupportedError 容器中不存在请求类型的提供者
type NotSupportedError struct {
	Type  reflect.Type
	Scope reflect.Type
}

func (e *NotSupportedError) Error() string {
	if e.Scope != nil {
		return fmt.Sprintf("di: %v is not supported by container %v", e.Type, e.Scope)
	}
	return fmt.Sprintf("di: %v is not supported", e.Type)
}

// CreationError 实例创建失败
type CreationError struct {
	Type reflect.Type
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("di: failed to create %v: %v", e.Type, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}
