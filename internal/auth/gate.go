// internal/auth/gate.go
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
)

// GateStatus 凭证门的对外状态，不包含凭证本身
type GateStatus struct {
	Valid         bool      `json:"valid"`
	NeedsReentry  bool      `json:"needs_reentry"`
	HasCredential bool      `json:"has_credential"`
	Reason        string    `json:"reason,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

// GateListener 状态变化回调
type GateListener func(GateStatus)

// Gate 在任何生成请求之前检查凭证是否可用。
// 授权失败后凭证被标记为失效，直到重新输入。
type Gate struct {
	mu          sync.RWMutex
	apiKey      string
	invalidated bool
	reason      string
	changedAt   time.Time
	listeners   []GateListener
}

// NewGate 使用初始凭证创建凭证门（可以为空）
func NewGate(apiKey string) *Gate {
	return &Gate{
		apiKey:    strings.TrimSpace(apiKey),
		changedAt: time.Now(),
	}
}

// Validate 凭证存在且自提供以来没有记录授权失败时返回 true
func (g *Gate) Validate() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.apiKey != "" && !g.invalidated
}

// NeedsReentry 是否需要重新输入凭证
func (g *Gate) NeedsReentry() bool {
	return !g.Validate()
}

// Key 返回当前凭证，仅供生成客户端构造提供者
func (g *Gate) Key() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.apiKey
}

// Invalidate 记录一次授权失败
func (g *Gate) Invalidate(reason string) {
	g.mu.Lock()
	g.invalidated = true
	g.reason = reason
	g.changedAt = time.Now()
	status := g.statusLocked()
	listeners := append([]GateListener(nil), g.listeners...)
	g.mu.Unlock()

	for _, listener := range listeners {
		listener(status)
	}
}

// Supply 重新输入凭证并清除失效标记。被放弃的操作不会自动重试。
func (g *Gate) Supply(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.NewValidationError("凭证不能为空", nil)
	}

	g.mu.Lock()
	g.apiKey = apiKey
	g.invalidated = false
	g.reason = ""
	g.changedAt = time.Now()
	status := g.statusLocked()
	listeners := append([]GateListener(nil), g.listeners...)
	g.mu.Unlock()

	for _, listener := range listeners {
		listener(status)
	}
	return nil
}

// OnChange 注册状态变化监听器
func (g *Gate) OnChange(listener GateListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, listener)
}

// Status 返回当前状态
func (g *Gate) Status() GateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.statusLocked()
}

func (g *Gate) statusLocked() GateStatus {
	valid := g.apiKey != "" && !g.invalidated
	reason := g.reason
	if g.apiKey == "" {
		reason = "no credential supplied"
	}
	return GateStatus{
		Valid:         valid,
		NeedsReentry:  !valid,
		HasCredential: g.apiKey != "",
		Reason:        reason,
		Fingerprint:   Fingerprint(g.apiKey),
		ChangedAt:     g.changedAt,
	}
}

// Fingerprint 返回凭证的短摘要，用于日志中区分不同凭证
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
