package domain

import (
	"errors"
	"fmt"
)

// 库存划转的错误分类。所有错误都会中止所在事务，由调用方决定是否重试。
var (
	ErrNotFound          = errors.New("stock record not found")
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTimeout           = errors.New("timed out acquiring stock lock")
	ErrPersistence       = errors.New("ledger store failure")
	ErrSameRecord        = errors.New("source and destination must differ")
	ErrRequestInProgress = errors.New("transfer request is already in progress")
	ErrRequestMismatch   = errors.New("request id was already used for a different transfer")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidAmount,
	ErrInsufficientStock,
	ErrTimeout,
	ErrSameRecord,
	ErrRequestInProgress,
	ErrRequestMismatch,
	ErrPersistence,
}

// TransferError 是划转失败时返回给调用方的类型化结果。
// Kind 总是上面的某个哨兵错误，可以直接用 errors.Is 判断。
type TransferError struct {
	Kind      error
	State     TransferState
	RequestID string
	Err       error
}

func (e *TransferError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("transfer %s aborted: %v", e.RequestID, e.Kind)
	}
	return fmt.Sprintf("transfer %s aborted: %v: %v", e.RequestID, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf 将任意错误归类到划转错误分类中，无法识别的一律视为存储故障。
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrPersistence
}

// NewTransferError 按错误分类包装一个失败的划转
func NewTransferError(requestID string, state TransferState, err error) *TransferError {
	return &TransferError{
		Kind:      KindOf(err),
		State:     state,
		RequestID: requestID,
		Err:       err,
	}
}
