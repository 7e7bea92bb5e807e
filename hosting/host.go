package hosting

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// Module 托管模块的作用域
type Module struct{}

type installOptions struct {
	stopTimeout time.Duration
}

// InstallOption 配置 Install
type InstallOption func(*installOptions)

// WithStopTimeout 设置单个服务停止的超时时间，默认 5 秒
func WithStopTimeout(d time.Duration) InstallOption {
	return func(o *installOptions) {
		o.stopTimeout = d
	}
}

// Install 声明 Module 并注册 Manager。
// 应在注册其他组件之前调用，使 Manager 先于托管服务创建、后于它们销毁。
func Install(r *di.Registry, opts ...InstallOption) {
	o := &installOptions{stopTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)

	logger := r.Logger().WithCategory("hosting")
	di.Provide(r, func() *Manager {
		return NewManager(logger, o.stopTimeout)
	}, di.WithModule(module))
}

type runOptions struct {
	ctx       context.Context
	signals   []os.Signal
	container []di.ContainerOption
}

// RunOption 配置 Run
type RunOption func(*runOptions)

// WithContext ctx 结束时关闭应用
func WithContext(ctx context.Context) RunOption {
	return func(o *runOptions) {
		o.ctx = ctx
	}
}

// WithSignals 替换默认监听的退出信号（os.Interrupt、SIGTERM）
func WithSignals(signals ...os.Signal) RunOption {
	return func(o *runOptions) {
		o.signals = signals
	}
}

// WithContainerOptions 传递给容器的选项
func WithContainerOptions(opts ...di.ContainerOption) RunOption {
	return func(o *runOptions) {
		o.container = append(o.container, opts...)
	}
}

// Run 以作用域 S 构建容器并阻塞，直到收到退出信号、ctx 结束或托管服务出错，
// 然后销毁容器。返回托管服务的错误与销毁错误。
func Run[S any](r *di.Registry, opts ...RunOption) error {
	o := &runOptions{
		ctx:     context.Background(),
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(o)
	}

	c, err := di.New[S](r, o.container...)
	if err != nil {
		return err
	}

	var failed <-chan struct{}
	mgr, err := di.Resolve[*Manager](c)
	if err == nil {
		failed = mgr.Failed()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, o.signals...)
	defer signal.Stop(quit)

	c.Logger().Info("应用已启动")

	var runErr error
	select {
	case sig := <-quit:
		c.Logger().Info("收到退出信号", logging.Field{Key: "signal", Value: sig.String()})
	case <-o.ctx.Done():
	case <-failed:
		runErr = mgr.Err()
	}

	return errors.Join(runErr, c.Destroy())
}
