package config

import (
	"encoding/json"
	"sync"
)

// Monitor 配置节的绑定结果，配置重载后自动更新
type Monitor[T any] struct {
	config  Configuration
	section string

	mu        sync.RWMutex
	current   T
	err       error
	listeners []func(T)
}

// NewMonitor 绑定配置节 section。
// cfg 支持 OnReload 时（如 *Root），重载后重新绑定；重新绑定失败时保留旧值。
func NewMonitor[T any](cfg Configuration, section string) (*Monitor[T], error) {
	m := &Monitor[T]{config: cfg, section: section}
	if err := m.reload(); err != nil {
		return nil, err
	}

	if rc, ok := cfg.(interface{ OnReload(func()) }); ok {
		rc.OnReload(func() {
			_ = m.reload()
		})
	}
	return m, nil
}

func (m *Monitor[T]) reload() error {
	var next T
	if err := m.config.Bind(m.section, &next); err != nil {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.current = next
	m.err = nil
	listeners := append([]func(T){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// Value 返回当前值
func (m *Monitor[T]) Value() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Err 返回最近一次重新绑定的错误
func (m *Monitor[T]) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// OnChange 注册变更回调
func (m *Monitor[T]) OnChange(fn func(T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Snapshot 返回当前值的深拷贝
func (m *Monitor[T]) Snapshot() T {
	current := m.Value()

	data, err := json.Marshal(current)
	if err != nil {
		return current
	}
	var snapshot T
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return current
	}
	return snapshot
}
