package observe

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

// Timed 标记需要记录调用次数和耗时的方法，Name 为空时使用 "类型.方法"
type Timed struct {
	Name string
}

// Module 监控模块的作用域
type Module struct{}

// Options 指标配置
type Options struct {
	Namespace string
	Subsystem string
	Buckets   []float64
}

// Option 配置 Options
type Option func(*Options)

// WithNamespace 设置指标命名空间
func WithNamespace(namespace string) Option {
	return func(o *Options) {
		o.Namespace = namespace
	}
}

// WithSubsystem 设置指标子系统
func WithSubsystem(subsystem string) Option {
	return func(o *Options) {
		o.Subsystem = subsystem
	}
}

// WithBuckets 设置耗时直方图的桶
func WithBuckets(buckets ...float64) Option {
	return func(o *Options) {
		o.Buckets = buckets
	}
}

// Metrics 方法调用指标
type Metrics struct {
	// Calls 调用次数，标签 method、status（ok / error）
	Calls *prometheus.CounterVec
	// Duration 调用耗时（秒），标签 method
	Duration *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 reg。
// 同名指标已注册时复用已有的收集器。
func NewMetrics(reg prometheus.Registerer, opts ...Option) (*Metrics, error) {
	o := &Options{Buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(o)
	}

	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: o.Subsystem,
			Name:      "method_calls_total",
			Help:      "Total number of intercepted method calls",
		},
		[]string{"method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: o.Subsystem,
			Name:      "method_duration_seconds",
			Help:      "Intercepted method call duration in seconds",
			Buckets:   o.Buckets,
		},
		[]string{"method"},
	)

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{Calls: calls, Duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe 记录一次调用
func (m *Metrics) Observe(method string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Calls.WithLabelValues(method, status).Inc()
	m.Duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// TimedAdvice 为带 Timed 标记的方法记录指标
type TimedAdvice struct {
	Metrics *Metrics `di:""`
}

// Time 同步连接点
func (a *TimedAdvice) Time(inv *aop.Invocation) error {
	start := time.Now()
	err := inv.Proceed()
	a.Metrics.Observe(methodName(inv), err, time.Since(start))
	return err
}

// TimeAsync 异步连接点，耗时包含等待 Future 完成的时间
func (a *TimedAdvice) TimeAsync(ctx context.Context, inv *aop.Invocation) error {
	start := time.Now()
	err := inv.ProceedAsync(ctx)
	a.Metrics.Observe(methodName(inv), err, time.Since(start))
	return err
}

func methodName(inv *aop.Invocation) string {
	if an, ok := inv.Method.Marker(Timed{}); ok {
		if t := an.Value.(Timed); t.Name != "" {
			return t.Name
		}
	}
	return inv.Method.String()
}

// Install 声明 Module，注册 Metrics（注册到 reg）和 TimedAdvice
func Install(r *di.Registry, reg prometheus.Registerer, opts ...Option) {
	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)

	di.Provide(r, func() (*Metrics, error) {
		return NewMetrics(reg, opts...)
	}, di.WithModule(module))
	di.Register[*TimedAdvice](r, di.WithModule(module))

	r.Annotate(di.TypeOf[*TimedAdvice]()).
		Type(aop.Advice{}).
		Method("Time", aop.Around{aop.Methods().DecoratedWith(Timed{}).ThatAreSync()}).
		Method("TimeAsync", aop.Around{aop.Methods().DecoratedWith(Timed{}).ThatAreAsync()})
}
