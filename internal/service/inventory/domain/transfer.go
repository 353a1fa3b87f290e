package domain

import (
	"fmt"
	"sort"
	"time"
)

// TransferState 定义了一次库存划转的生命周期状态
type TransferState string

const (
	StatePending   TransferState = "PENDING"   // 请求已收到，尚未校验
	StateValidated TransferState = "VALIDATED" // 请求参数合法，开始加锁处理
	StateCommitted TransferState = "COMMITTED" // 终态: 两条记录的修改已原子提交
	StateAborted   TransferState = "ABORTED"   // 终态: 没有任何修改被持久化
)

// TransferRequest 是库存划转的命令对象，每次调用时构造，不做持久化。
type TransferRequest struct {
	RequestID     string `json:"request_id,omitempty"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	Amount        int64  `json:"amount"`
}

// Validate 在加锁之前校验请求
func (r *TransferRequest) Validate() error {
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if r.SourceID == "" || r.DestinationID == "" {
		return ErrNotFound
	}
	if r.SourceID == r.DestinationID {
		return ErrSameRecord
	}
	return nil
}

// LockOrder 返回加锁顺序: 按标识升序。
// 两个方向相反的并发划转会以相同顺序加锁，从而不会互相死锁。
func (r *TransferRequest) LockOrder() []string {
	ids := []string{r.SourceID, r.DestinationID}
	sort.Strings(ids)
	return ids
}

// Fingerprint 标识请求的实际内容，用于判断复用的 RequestID 是否指向同一次划转
func (r *TransferRequest) Fingerprint() string {
	return fmt.Sprintf("%q>%q:%d", r.SourceID, r.DestinationID, r.Amount)
}

// TransferResult 是划转成功后的命令结果
type TransferResult struct {
	RequestID   string        `json:"request_id"`
	Source      StockRecord   `json:"source"`
	Destination StockRecord   `json:"destination"`
	Amount      int64         `json:"amount"`
	State       TransferState `json:"state"`
	CommittedAt time.Time     `json:"committed_at"`
	Replayed    bool          `json:"replayed,omitempty"`
}
