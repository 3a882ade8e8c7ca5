// internal/services/operation_tracker.go
package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
)

// 实体键
const SeriesKey = "series"

func IssueKey(id string) string { return "issue:" + id }
func FrameKey(id string) string { return "frame:" + id }
func CastKey(id string) string  { return "cast:" + id }

// Operation 一个进行中的操作
type Operation struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// OperationTracker 按实体记录进行中的操作；同一实体上的第二个操作会被拒绝，
// 不同实体上的操作互不影响。
type OperationTracker struct {
	mutex      sync.Mutex
	operations map[string]Operation
}

// NewOperationTracker 创建操作跟踪器
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{
		operations: make(map[string]Operation),
	}
}

// Begin 为 key 登记一个操作，返回释放函数
func (t *OperationTracker) Begin(key, kind string) (func(), error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if existing, busy := t.operations[key]; busy {
		return nil, errors.NewConflictError(
			fmt.Sprintf("%s 正在进行 %s 操作", key, existing.Kind), nil)
	}

	t.operations[key] = Operation{Key: key, Kind: kind, StartedAt: time.Now()}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mutex.Lock()
			delete(t.operations, key)
			t.mutex.Unlock()
		})
	}, nil
}

// Active 返回 key 上是否有进行中的操作
func (t *OperationTracker) Active(key string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	_, busy := t.operations[key]
	return busy
}

// Snapshot 返回所有进行中的操作，按键排序
func (t *OperationTracker) Snapshot() []Operation {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ops := make([]Operation, 0, len(t.operations))
	for _, op := range t.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Key < ops[j].Key })
	return ops
}

// Len 进行中的操作数
func (t *OperationTracker) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.operations)
}
