package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidationError 绑定后的结构体校验失败
type ValidationError struct {
	Key    string
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid section %q: %s", e.Key, strings.Join(e.Fields, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// validate 对结构体（或其指针）执行 validate 标签校验，其它类型直接通过
func validate(key string, target any) error {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	err := structValidator.Struct(target)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate %s: %w", key, err)
	}

	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = formatFieldError(fe)
	}
	return &ValidationError{Key: key, Fields: fields, Err: err}
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Namespace())
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("%s must satisfy %s=%s", e.Namespace(), e.Tag(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", e.Namespace(), e.Param())
	default:
		return fmt.Sprintf("%s failed on %s", e.Namespace(), e.Tag())
	}
}
