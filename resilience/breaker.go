package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// Breaker 标记由熔断器保护的方法。
// 同名的方法共享一个熔断器，Name 为空时使用 "类型.方法"。
type Breaker struct {
	Name string
}

// Module 熔断模块的作用域
type Module struct{}

// Settings 熔断器配置
type Settings struct {
	// MaxRequests 半开状态下允许通过的请求数
	MaxRequests uint32
	// Interval 关闭状态下清零统计的周期，0 表示不清零
	Interval time.Duration
	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration
	// FailureThreshold 触发熔断的失败率
	FailureThreshold float64
	// MinRequests 计算失败率前至少需要的请求数
	MinRequests uint32
}

// DefaultSettings 返回默认配置
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Option 配置 BreakerAdvice
type Option func(*BreakerAdvice)

// WithDefaults 设置所有熔断器的默认配置
func WithDefaults(s Settings) Option {
	return func(a *BreakerAdvice) {
		a.defaults = s
	}
}

// WithBreaker 为名为 name 的熔断器单独设置配置
func WithBreaker(name string, s Settings) Option {
	return func(a *BreakerAdvice) {
		a.overrides[name] = s
	}
}

// BreakerAdvice 为带 Breaker 标记的方法套上熔断器。
// 熔断器打开时调用直接失败，返回 gobreaker.ErrOpenState 或 gobreaker.ErrTooManyRequests。
type BreakerAdvice struct {
	logger    logging.Logger
	defaults  Settings
	overrides map[string]Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerAdvice 创建熔断通知
func NewBreakerAdvice(logger logging.Logger, opts ...Option) *BreakerAdvice {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &BreakerAdvice{
		logger:    logger,
		defaults:  DefaultSettings(),
		overrides: make(map[string]Settings),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CircuitBreaker 返回名为 name 的熔断器，不存在时创建
func (a *BreakerAdvice) CircuitBreaker(name string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cb, ok := a.breakers[name]; ok {
		return cb
	}

	s, ok := a.overrides[name]
	if !ok {
		s = a.defaults
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("熔断器状态变化",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()})
		},
	})
	a.breakers[name] = cb
	return cb
}

// State 返回熔断器状态，熔断器尚未创建时为关闭
func (a *BreakerAdvice) State(name string) gobreaker.State {
	a.mu.Lock()
	cb, ok := a.breakers[name]
	a.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Guard 同步连接点
func (a *BreakerAdvice) Guard(inv *aop.Invocation) error {
	_, err := a.CircuitBreaker(breakerName(inv)).Execute(func() (any, error) {
		return nil, inv.Proceed()
	})
	return err
}

// GuardAsync 异步连接点
func (a *BreakerAdvice) GuardAsync(ctx context.Context, inv *aop.Invocation) error {
	_, err := a.CircuitBreaker(breakerName(inv)).Execute(func() (any, error) {
		return nil, inv.ProceedAsync(ctx)
	})
	return err
}

func breakerName(inv *aop.Invocation) string {
	if an, ok := inv.Method.Marker(Breaker{}); ok {
		if b := an.Value.(Breaker); b.Name != "" {
			return b.Name
		}
	}
	return inv.Method.String()
}

// Install 声明 Module 并注册 BreakerAdvice
func Install(r *di.Registry, opts ...Option) {
	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)

	logger := r.Logger().WithCategory("resilience")
	di.Provide(r, func() *BreakerAdvice {
		return NewBreakerAdvice(logger, opts...)
	}, di.WithModule(module))

	r.Annotate(di.TypeOf[*BreakerAdvice]()).
		Type(aop.Advice{}).
		Method("Guard", aop.Around{aop.Methods().DecoratedWith(Breaker{}).ThatAreSync()}).
		Method("GuardAsync", aop.Around{aop.Methods().DecoratedWith(Breaker{}).ThatAreAsync()})
}
