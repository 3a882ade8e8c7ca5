// internal/services/studio_metrics.go
package services

import (
	"sort"
	"sync"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
)

// 操作名称
const (
	OpInitialize = "initialize_series"
	OpDraft      = "draft_issue_script"
	OpShoot      = "shoot_frame"
	OpShootBeat  = "shoot_beat"
	OpPortrait   = "render_portrait"
	OpPublish    = "publish_issue"
)

type operationStats struct {
	total           int64
	succeeded       int64
	failures        map[string]int64
	averageDuration time.Duration
}

// StudioMetrics 工作室操作的性能指标
type StudioMetrics struct {
	mutex                sync.RWMutex
	operations           map[string]*operationStats
	concurrentOperations int32
	lastMetricsReset     time.Time
}

// NewStudioMetrics 创建指标收集器
func NewStudioMetrics() *StudioMetrics {
	return &StudioMetrics{
		operations:       make(map[string]*operationStats),
		lastMetricsReset: time.Now(),
	}
}

// Begin 记录一个操作开始
func (m *StudioMetrics) Begin() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.concurrentOperations++
}

// Record 记录一个已结束的操作；err 为 nil 表示成功
func (m *StudioMetrics) Record(op string, duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.concurrentOperations > 0 {
		m.concurrentOperations--
	}

	stats, ok := m.operations[op]
	if !ok {
		stats = &operationStats{failures: make(map[string]int64)}
		m.operations[op] = stats
	}

	stats.total++
	stats.averageDuration = (stats.averageDuration*time.Duration(stats.total-1) + duration) / time.Duration(stats.total)
	if err == nil {
		stats.succeeded++
		return
	}

	kind := string(errors.TypeOf(err))
	if kind == "" {
		kind = "unknown"
	}
	stats.failures[kind]++
}

// GetMetrics 获取性能指标
func (m *StudioMetrics) GetMetrics() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.operations))
	for name := range m.operations {
		names = append(names, name)
	}
	sort.Strings(names)

	operations := make(map[string]interface{}, len(names))
	for _, name := range names {
		stats := m.operations[name]
		failures := make(map[string]int64, len(stats.failures))
		for k, v := range stats.failures {
			failures[k] = v
		}
		operations[name] = map[string]interface{}{
			"total":               stats.total,
			"succeeded":           stats.succeeded,
			"failures":            failures,
			"average_duration_ms": stats.averageDuration.Milliseconds(),
		}
	}

	return map[string]interface{}{
		"operations":            operations,
		"concurrent_operations": m.concurrentOperations,
		"last_reset":            m.lastMetricsReset,
	}
}

// Totals 返回某个操作的总次数与成功次数
func (m *StudioMetrics) Totals(op string) (total, succeeded int64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if stats, ok := m.operations[op]; ok {
		return stats.total, stats.succeeded
	}
	return 0, 0
}

// ResetMetrics 重置性能指标
func (m *StudioMetrics) ResetMetrics() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.operations = make(map[string]*operationStats)
	m.concurrentOperations = 0
	m.lastMetricsReset = time.Now()
}
