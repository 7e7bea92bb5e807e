package config

import (
	"strings"
	"sync"
)

// PathCache 缓存配置路径的分段结果
type PathCache struct {
	cache sync.Map // string -> []string
}

// GetPathSegments 获取路径片段，":" 和 "." 均为分隔符
func (c *PathCache) GetPathSegments(path string) []string {
	if v, ok := c.cache.Load(path); ok {
		return v.([]string)
	}

	parts := strings.FieldsFunc(path, func(r rune) bool { return r == ':' || r == '.' })
	c.cache.Store(path, parts)
	return parts
}

var globalPathCache = &PathCache{}
