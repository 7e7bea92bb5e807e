package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

// Value 标记一个只有一个参数的方法，实例初始化时以配置项 Key 的值调用它。
// 配置项不存在时使用 Default，Default 也为 nil 时传入参数类型的零值。
//
// 示例：
//
//	r.Annotate(di.TypeOf[*Server]()).Method("SetPort", config.Value{Key: "server:port", Default: 8080})
type Value struct {
	Key     string
	Default any
}

// Module 配置模块的作用域。
// 应用作用域导入 *Module 后即可注入 Configuration 以及 Bind 注册的配置节。
type Module struct{}

type installOptions struct {
	watch bool
}

// InstallOption 配置 Install
type InstallOption func(*installOptions)

// WithWatch 为文件配置源启用热重载，监听随容器运行启动、随容器销毁停止
func WithWatch() InstallOption {
	return func(o *installOptions) {
		o.watch = true
	}
}

// Install 将配置接入注册表：
// 声明 Module 作用域，注册 cfg，并注册 Value 标记的回调。
// 定义期错误会 panic。
func Install(r *di.Registry, cfg Configuration, opts ...InstallOption) {
	options := &installOptions{}
	for _, opt := range opts {
		opt(options)
	}

	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)
	di.RegisterValue(r, cfg, di.WithModule(module))

	err := r.RegisterCallable(&di.Callable{
		Marker: di.TypeOf[Value](),
		Phase:  di.PhaseInit,
		Order:  0,
		Args:   valueArgs(cfg),
	})
	if err != nil {
		panic(err)
	}

	if root, ok := cfg.(*Root); ok && options.watch {
		logger := r.Logger()
		di.Provide(r, func() *Watcher { return NewWatcher(root, logger) }, di.WithModule(module))
		r.Annotate(di.TypeOf[*Watcher]()).
			Method("Start", di.OnRunning{}).
			Method("Stop", di.OnDestroy{})
	}
}

// Bind 注册由配置节 section 绑定（并校验）得到的 *T
func Bind[T any](r *di.Registry, section string, opts ...di.Option) {
	di.Provide(r, func(cfg Configuration) (*T, error) {
		t := new(T)
		if err := cfg.Bind(section, t); err != nil {
			return nil, err
		}
		return t, nil
	}, opts...)
}

// BindMonitor 注册跟随配置重载的 *Monitor[T]
func BindMonitor[T any](r *di.Registry, section string, opts ...di.Option) {
	di.Provide(r, func(cfg Configuration) (*Monitor[T], error) {
		return NewMonitor[T](cfg, section)
	}, opts...)
}

func valueArgs(cfg Configuration) di.ArgsFunc {
	return func(_ *di.Container, m *meta.Method, marker any) ([]reflect.Value, error) {
		v := marker.(Value)
		if len(m.Params) != 1 {
			return nil, fmt.Errorf("config: %s must take exactly one parameter", m)
		}
		t := m.Params[0]

		raw, ok := cfg.Lookup(v.Key)
		if !ok || raw == nil {
			raw = v.Default
		}
		if raw == nil {
			return []reflect.Value{reflect.Zero(t)}, nil
		}

		val, err := coerce(raw, t)
		if err != nil {
			return nil, fmt.Errorf("config: value %s: %w", v.Key, err)
		}
		return []reflect.Value{val}, nil
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// coerce 将配置值转换为类型 t
func coerce(raw any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(raw)

	if s, ok := raw.(string); ok && t.Kind() != reflect.String {
		return parseString(s, t)
	}

	switch {
	case t == durationType && isNumber(rv.Kind()):
		// 数字按秒处理
		return reflect.ValueOf(time.Duration(rv.Convert(reflect.TypeOf(float64(0))).Float() * float64(time.Second))), nil
	case rv.Type().AssignableTo(t):
		return rv, nil
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return rv.Convert(t), nil
	case t.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(raw)).Convert(t), nil
	}

	// 结构体、切片、map 通过 JSON 转换
	data, err := json.Marshal(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %v: %w", raw, t, err)
	}
	return ptr.Elem(), nil
}

func parseString(s string, t reflect.Type) (reflect.Value, error) {
	if t == durationType {
		d, err := time.ParseDuration(s)
		return reflect.ValueOf(d), err
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		return reflect.ValueOf(b).Convert(t), err
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, t.Bits())
		return reflect.ValueOf(i).Convert(t), err
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, t.Bits())
		return reflect.ValueOf(u).Convert(t), err
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		return reflect.ValueOf(f).Convert(t), err
	case reflect.Interface:
		if reflect.TypeOf(s).AssignableTo(t) {
			return reflect.ValueOf(s), nil
		}
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal([]byte(s), ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %q to %v: %w", s, t, err)
	}
	return ptr.Elem(), nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
