package job

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// Scheduled 标记按 cron 表达式周期执行的方法。
// 方法签名可以是 func()、func() error、func(context.Context) 或 func(context.Context) error。
// Name 为空时使用 "类型.方法"。
type Scheduled struct {
	Spec string
	Name string
}

// options 调度器配置
type options struct {
	location      *time.Location
	seconds       bool
	skipIfRunning bool
}

// Option 配置 Scheduler
type Option func(*options)

// WithSeconds 启用秒级精度（表达式多一个秒字段）
func WithSeconds() Option {
	return func(o *options) {
		o.seconds = true
	}
}

// WithLocation 设置时区，默认本地时区
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// WithSkipIfRunning 上一次执行未结束时跳过本次执行
func WithSkipIfRunning() Option {
	return func(o *options) {
		o.skipIfRunning = true
	}
}

// entry 一个已注册的任务
type entry struct {
	id      cron.EntryID
	spec    string
	owner   any
	wrapped cron.Job
}

// Scheduler 基于 robfig/cron 的任务调度器。
// 它作为生命周期处理器收集容器中带 Scheduled 标记的方法，容器运行时启动，销毁时停止。
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]*entry
	running bool
}

// NewScheduler 创建调度器
func NewScheduler(logger logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	opt := &options{location: time.Local}
	for _, o := range opts {
		o(opt)
	}

	cl := newCronLogger(logger)
	wrappers := []cron.JobWrapper{cron.Recover(cl)}
	if opt.skipIfRunning {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cl))
	}

	cronOpts := []cron.Option{
		cron.WithLocation(opt.location),
		cron.WithChain(wrappers...),
	}
	if opt.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cronOpts...),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Add 添加任务，名称重复时返回错误
func (s *Scheduler) Add(spec, name string, fn func(ctx context.Context) error) error {
	return s.add(spec, name, nil, fn)
}

func (s *Scheduler) add(spec, name string, owner any, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job: %s already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Debug("任务开始", logging.Field{Key: "job", Value: name})
		if err := fn(s.ctx); err != nil {
			s.logger.Error("任务失败", logging.Field{Key: "job", Value: name}, logging.Field{Key: "error", Value: err})
			return
		}
		s.logger.Debug("任务完成", logging.Field{Key: "job", Value: name},
			logging.Field{Key: "duration", Value: time.Since(start)})
	})
	if err != nil {
		return fmt.Errorf("job: invalid spec %q for %s: %w", spec, name, err)
	}

	s.jobs[name] = &entry{id: id, spec: spec, owner: owner, wrapped: s.cron.Entry(id).WrappedJob}
	s.logger.Info("任务已注册", logging.Field{Key: "job", Value: name}, logging.Field{Key: "spec", Value: spec})
	return nil
}

// Remove 移除任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
	}
}

// Run 立即同步执行一次任务（经过与调度相同的包装链）
func (s *Scheduler) Run(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job: %s not found", name)
	}
	e.wrapped.Run()
	return nil
}

// Jobs 返回已注册的任务名称（有序）
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next 返回任务的下一次执行时间，调度器未启动时为零值
func (s *Scheduler) Next(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.jobs[name]; ok {
		return s.cron.Entry(e.id).Next
	}
	return time.Time{}
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("调度器已启动", logging.Field{Key: "jobs", Value: len(s.jobs)})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if running {
		<-s.cron.Stop().Done()
		s.logger.Info("调度器已停止")
	}
}

// ProcessLifecycle 实现 di.LifecycleProcessor：
// init 阶段登记实例上带 Scheduled 标记的方法，destroy 阶段移除它们
func (s *Scheduler) ProcessLifecycle(phase di.Phase, instance any, c *di.Container) error {
	if instance == any(s) {
		return nil
	}

	switch phase {
	case di.PhaseInit:
		desc := c.Registry().Metadata().Describe(reflect.TypeOf(instance))
		for _, m := range desc.MethodsWith(Scheduled{}) {
			a, _ := m.Marker(Scheduled{})
			marker := a.Value.(Scheduled)

			fn, err := bind(instance, m)
			if err != nil {
				return err
			}
			name := marker.Name
			if name == "" {
				name = m.String()
			}
			if err := s.add(marker.Spec, name, instance, fn); err != nil {
				return err
			}
		}

	case di.PhaseDestroy:
		if !reflect.TypeOf(instance).Comparable() {
			return nil
		}
		s.mu.Lock()
		for name, e := range s.jobs {
			if e.owner == instance {
				s.cron.Remove(e.id)
				delete(s.jobs, name)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// bind 将标记的方法适配为统一的任务函数
func bind(instance any, m *meta.Method) (func(context.Context) error, error) {
	withCtx := len(m.Params) == 1 && m.Params[0] == contextType
	if len(m.Params) > 1 || (len(m.Params) == 1 && !withCtx) {
		return nil, fmt.Errorf("job: %s must take no arguments or a context.Context", m)
	}
	if len(m.Results) > 1 || (len(m.Results) == 1 && !m.ReturnsError()) {
		return nil, fmt.Errorf("job: %s must return nothing or an error", m)
	}

	method := reflect.ValueOf(instance).Method(m.Index)
	return func(ctx context.Context) error {
		var in []reflect.Value
		if withCtx {
			in = []reflect.Value{reflect.ValueOf(ctx)}
		}
		out := method.Call(in)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// cronLogger 将日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err.Error()})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
