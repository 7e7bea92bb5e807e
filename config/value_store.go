package config

import "sync/atomic"

// ValueStore 保存配置数据快照，读取无锁，重载时整体替换
type ValueStore struct {
	value atomic.Pointer[map[string]any]
}

// NewValueStore 创建新的 ValueStore
func NewValueStore() *ValueStore {
	s := &ValueStore{}
	s.Store(make(map[string]any))
	return s
}

// Load 加载当前配置快照，调用方不得修改
func (s *ValueStore) Load() map[string]any {
	return *s.value.Load()
}

// Store 原子替换配置数据
func (s *ValueStore) Store(data map[string]any) {
	s.value.Store(&data)
}
