package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Configuration 配置接口（类似于 .NET Core IConfiguration）
type Configuration interface {
	// Get 获取配置值
	Get(key string) string
	// GetWithDefault 获取配置值，如果不存在则返回默认值
	GetWithDefault(key, defaultValue string) string
	// GetInt 获取整数配置值
	GetInt(key string) (int, error)
	// GetBool 获取布尔配置值
	GetBool(key string) (bool, error)
	// Lookup 获取原始配置值
	Lookup(key string) (any, bool)
	// GetSection 获取配置节
	GetSection(key string) Configuration
	// Bind 绑定配置到结构体，结构体带有 validate 标签时同时校验
	Bind(key string, target any) error
	// GetAll 获取所有配置
	GetAll() map[string]any
}

// ConfigurationSource 配置源接口
type ConfigurationSource interface {
	Load() (map[string]any, error)
	Name() string
}

// ConfigurationBuilder 配置构建器
type ConfigurationBuilder struct {
	sources []ConfigurationSource
	mu      sync.RWMutex
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{}
}

// Add 添加配置源，后添加的覆盖先添加的
func (b *ConfigurationBuilder) Add(source ConfigurationSource) *ConfigurationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddJsonFile 添加 JSON 文件配置源
func (b *ConfigurationBuilder) AddJsonFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&JsonFileSource{Path: path, Optional: isOptional(optional)})
}

// AddYamlFile 添加 YAML 文件配置源
func (b *ConfigurationBuilder) AddYamlFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&YamlFileSource{Path: path, Optional: isOptional(optional)})
}

// AddDotEnv 添加 .env 文件配置源
func (b *ConfigurationBuilder) AddDotEnv(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&DotEnvSource{Path: path, Optional: isOptional(optional)})
}

// AddEnvironmentVariables 添加环境变量配置源
func (b *ConfigurationBuilder) AddEnvironmentVariables(prefix string) *ConfigurationBuilder {
	return b.Add(&EnvironmentVariableSource{Prefix: prefix})
}

// AddInMemory 添加内存配置源
func (b *ConfigurationBuilder) AddInMemory(data map[string]any) *ConfigurationBuilder {
	return b.Add(&InMemorySource{Data: data})
}

// AddEtcd 添加 etcd 配置源
func (b *ConfigurationBuilder) AddEtcd(opts EtcdOptions) *ConfigurationBuilder {
	return b.Add(&EtcdSource{Options: opts.withDefaults()})
}

// Build 按顺序加载所有配置源并构建可重载的根配置
func (b *ConfigurationBuilder) Build() (*Root, error) {
	b.mu.RLock()
	sources := append([]ConfigurationSource(nil), b.sources...)
	b.mu.RUnlock()

	root := &Root{sources: sources}
	root.configuration = configuration{store: NewValueStore()}
	if err := root.Reload(); err != nil {
		return nil, err
	}
	return root, nil
}

func isOptional(optional []bool) bool {
	return len(optional) > 0 && optional[0]
}

// Root 由配置源构建的根配置，支持重载和变更回调
type Root struct {
	configuration

	sources []ConfigurationSource

	mu        sync.Mutex
	callbacks []func()
}

// Reload 重新加载所有配置源。
// 任一配置源失败时保留旧配置。
func (r *Root) Reload() error {
	data := make(map[string]any)
	for _, source := range r.sources {
		loaded, err := source.Load()
		if err != nil {
			return fmt.Errorf("config: failed to load source %s: %w", source.Name(), err)
		}
		mergeMaps(data, loaded)
	}

	r.store.Store(data)

	r.mu.Lock()
	callbacks := append([]func(){}, r.callbacks...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// OnReload 注册重载回调
func (r *Root) OnReload(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Sources 返回配置源
func (r *Root) Sources() []ConfigurationSource {
	return r.sources
}

// configuration 以 ValueStore 快照为数据的配置视图，prefix 为节路径
type configuration struct {
	store  *ValueStore
	prefix []string
}

// Get 获取配置值
func (c *configuration) Get(key string) string {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetWithDefault 获取配置值，如果不存在则返回默认值
func (c *configuration) GetWithDefault(key, defaultValue string) string {
	value := c.Get(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt 获取整数配置值
func (c *configuration) GetInt(key string) (int, error) {
	value, ok := c.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("config: cannot convert %v to int", value)
	}
}

// GetBool 获取布尔配置值
func (c *configuration) GetBool(key string) (bool, error) {
	value, ok := c.Lookup(key)
	if !ok {
		return false, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("config: cannot convert %v to bool", value)
	}
}

// Lookup 获取原始配置值（支持 "a:b:c" 或 "a.b.c"）
func (c *configuration) Lookup(key string) (any, bool) {
	current := any(c.store.Load())
	for _, part := range c.path(key) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// GetSection 获取配置节，节随根配置重载
func (c *configuration) GetSection(key string) Configuration {
	return &configuration{store: c.store, prefix: c.path(key)}
}

// Bind 绑定配置到结构体
func (c *configuration) Bind(key string, target any) error {
	data, ok := c.Lookup(key)
	if !ok || data == nil {
		return fmt.Errorf("config: key %s not found", key)
	}

	// 使用 JSON 序列化/反序列化进行绑定
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("config: failed to marshal %s: %w", key, err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("config: failed to bind %s: %w", key, err)
	}

	return validate(key, target)
}

// GetAll 获取所有配置的副本
func (c *configuration) GetAll() map[string]any {
	result := make(map[string]any)
	if m, ok := c.Lookup(""); ok {
		if data, ok := m.(map[string]any); ok {
			mergeMaps(result, data)
		}
	}
	return result
}

func (c *configuration) path(key string) []string {
	if key == "" {
		return c.prefix
	}
	segments := globalPathCache.GetPathSegments(key)
	if len(c.prefix) == 0 {
		return segments
	}
	out := make([]string, 0, len(c.prefix)+len(segments))
	out = append(out, c.prefix...)
	return append(out, segments...)
}

// mergeMaps 深度合并 src 到 dst，嵌套的 map 会被复制
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		srcMap, isMap := v.(map[string]any)
		if !isMap {
			dst[k] = v
			continue
		}
		dstMap, ok := dst[k].(map[string]any)
		if !ok {
			dstMap = make(map[string]any)
			dst[k] = dstMap
		}
		mergeMaps(dstMap, srcMap)
	}
}

// setNestedValue 按 ":" 分隔的路径设置值，字符串会尝试转换为数字或布尔值
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ":")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			if _, exists := current[part]; exists {
				return
			}
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}

	if s, ok := value.(string); ok {
		value = parseScalar(s)
	}
	current[parts[len(parts)-1]] = value
}

func parseScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
