// internal/services/ids.go
package services

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator 为实体分配在会话内唯一的ID
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator 使用随机 UUID v4
type UUIDGenerator struct{}

// NewID 返回新的 UUID
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequenceGenerator 带前缀的单调递增ID，用于可重现的测试
type SequenceGenerator struct {
	prefix string
	next   atomic.Uint64
}

// NewSequenceGenerator 创建序列生成器
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewID 返回下一个序号
func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.next.Add(1))
}
