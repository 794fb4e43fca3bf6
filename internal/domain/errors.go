package domain

import (
	"errors"
	"fmt"
)

// 领域层通用错误，上层通过 errors.Is 判断
var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrOutOfStock        = errors.New("product out of stock")
	ErrProductInactive   = errors.New("product is inactive")
	ErrConflict          = errors.New("concurrent modification")
)

// TransitionError 描述被拒绝的状态迁移
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("illegal order status transition: (none) -> %s", e.To)
	}
	return fmt.Sprintf("illegal order status transition: %s -> %s", e.From, e.To)
}

// Unwrap 使 errors.Is(err, ErrIllegalTransition) 成立
func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ValidationError 携带面向客户端的校验信息
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError 构造校验错误
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
