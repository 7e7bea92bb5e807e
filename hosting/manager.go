package hosting

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Service 托管服务接口。
// 容器运行后框架在独立的 goroutine 中调用 Start，Start 应阻塞直到 ctx 取消或出错；
// 实例销毁时调用 Stop 执行清理，Stop 必须遵守 ctx 的超时。
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager 托管服务管理器。
// 它作为生命周期处理器在 running 阶段启动容器中实现了 Service 的实例，
// 在实例 destroy 阶段停止它们；Manager 自身销毁时取消所有服务的上下文并等待其退出。
type Manager struct {
	logger      logging.Logger
	stopTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	services []Service

	failOnce sync.Once
	failed   chan struct{}
	err      error
}

// NewManager 创建托管服务管理器
func NewManager(logger logging.Logger, stopTimeout time.Duration) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:      logger,
		stopTimeout: stopTimeout,
		ctx:         ctx,
		cancel:      cancel,
		failed:      make(chan struct{}),
	}
}

// ProcessLifecycle 实现 di.LifecycleProcessor
func (m *Manager) ProcessLifecycle(phase di.Phase, instance any, _ *di.Container) error {
	if instance == any(m) {
		if phase == di.PhaseDestroy {
			m.shutdown()
		}
		return nil
	}

	svc, ok := instance.(Service)
	if !ok || !reflect.TypeOf(instance).Comparable() {
		return nil
	}

	switch phase {
	case di.PhaseRunning:
		m.start(svc)
	case di.PhaseDestroy:
		return m.stop(svc)
	}
	return nil
}

// Services 返回已启动的服务数量
func (m *Manager) Services() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.services)
}

// Failed 在第一个服务以错误退出时关闭
func (m *Manager) Failed() <-chan struct{} {
	return m.failed
}

// Err 返回第一个服务的错误
func (m *Manager) Err() error {
	select {
	case <-m.failed:
		return m.err
	default:
		return nil
	}
}

func (m *Manager) start(svc Service) {
	m.mu.Lock()
	m.services = append(m.services, svc)
	m.mu.Unlock()

	name := reflect.TypeOf(svc).String()
	m.logger.Info("托管服务启动", logging.Field{Key: "service", Value: name})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		err := svc.Start(m.ctx)
		switch {
		case err == nil:
			m.logger.Debug("托管服务已完成", logging.Field{Key: "service", Value: name})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			m.logger.Debug("托管服务已退出", logging.Field{Key: "service", Value: name})
		default:
			m.logger.Error("托管服务出错", logging.Field{Key: "service", Value: name},
				logging.Field{Key: "error", Value: err.Error()})
			m.fail(fmt.Errorf("hosting: %s: %w", name, err))
		}
	}()
}

func (m *Manager) stop(svc Service) error {
	m.mu.Lock()
	found := false
	for i, s := range m.services {
		if s == svc {
			m.services = append(m.services[:i], m.services[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
	defer cancel()

	name := reflect.TypeOf(svc).String()
	if err := svc.Stop(ctx); err != nil {
		m.logger.Error("托管服务停止失败", logging.Field{Key: "service", Value: name},
			logging.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("hosting: stop %s: %w", name, err)
	}
	m.logger.Info("托管服务已停止", logging.Field{Key: "service", Value: name})
	return nil
}

func (m *Manager) fail(err error) {
	m.failOnce.Do(func() {
		m.err = err
		close(m.failed)
	})
}

func (m *Manager) shutdown() {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		m.logger.Warn("等待托管服务退出超时")
	}
}
