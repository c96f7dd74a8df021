package retrieval

import (
	"context"
	"errors"
	"fmt"

	"hybrid-ranking-api/internal/domain/entity"
)

// ErrorKind 召回源错误类型
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindUnavailable  ErrorKind = "unavailable"
	KindInvalidInput ErrorKind = "invalid_input"
)

var (
	// ErrNoSignal 请求缺少该源需要的输入（冷启动用户、无历史），不计入熔断失败
	ErrNoSignal = errors.New("no signal for source")
	// ErrNotConfigured 召回源后端未配置
	ErrNotConfigured = errors.New("source backend not configured")
)

// SourceError 召回源失败
type SourceError struct {
	Source entity.Source
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Source, e.Kind)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Unavailable 创建不可用错误
func Unavailable(src entity.Source, err error) *SourceError {
	return &SourceError{Source: src, Kind: KindUnavailable, Err: err}
}

// InvalidInput 创建输入非法错误
func InvalidInput(src entity.Source, err error) *SourceError {
	return &SourceError{Source: src, Kind: KindInvalidInput, Err: err}
}

// Timeout 创建超时错误
func Timeout(src entity.Source, err error) *SourceError {
	return &SourceError{Source: src, Kind: KindTimeout, Err: err}
}

func kindOf(err error) (ErrorKind, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsTimeout 是否为超时错误
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsUnavailable 是否为不可用错误
func IsUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}

// IsInvalidInput 是否为输入非法错误
func IsInvalidInput(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvalidInput
}

// classify 将任意错误归一为 SourceError
func classify(src entity.Source, err error) *SourceError {
	var se *SourceError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(src, err)
	}
	return Unavailable(src, err)
}

// countsAsFailure 熔断器失败判定：输入问题与调用方取消不计入
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoSignal) || errors.Is(err, ErrNotConfigured) || IsInvalidInput(err) {
		return false
	}
	return true
}
