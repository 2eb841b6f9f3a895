package domain

import (
	"errors"
	"fmt"
)

// 错误分类：调用方通过 errors.Is 判断，HTTP 层映射为 404/400/403
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
)

// NotFoundf 构造包装 ErrNotFound 的错误
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// BadRequestf 构造包装 ErrBadRequest 的错误
func BadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Forbiddenf 构造包装 ErrForbidden 的错误
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
