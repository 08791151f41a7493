package util

import (
	"errors"
	"fmt"
)

// 校验类错误：同步拒绝，直接报告调用方，绝不自动重试
var (
	ErrFileTooLarge      = errors.New("file exceeds the maximum allowed size")
	ErrQuotaExceeded     = errors.New("owner resource quota exceeded")
	ErrDuplicateResource = errors.New("identical content already stored")
	ErrInvalidKind       = errors.New("unknown resource kind")
	ErrInvalidPageRange  = errors.New("invalid page range")
)

// 安全类错误：文件立即删除并记录安全事件
var ErrMalwareDetected = errors.New("malware detected in uploaded file")

// 扫描服务不可用：fail-closed 模式下拒绝入库
var ErrScannerUnavailable = errors.New("malware scanner unavailable")

// 状态机类错误："不存在"与"状态不合法"必须可区分
var (
	ErrResourceNotFound  = errors.New("resource not found")
	ErrAlreadyApproved   = errors.New("resource is already approved")
	ErrNotPendingReview  = errors.New("resource is not pending review")
	ErrNotPrivate        = errors.New("resource is not private")
	ErrRejectApproved    = errors.New("cannot reject an approved resource")
	ErrNotApproved       = errors.New("resource is not approved for public visibility")
	ErrNotOwner          = errors.New("resource does not belong to this owner")
	ErrEditAfterApproval = errors.New("metadata cannot be edited after approval")
)

// 下载签名错误
var (
	ErrURLExpired          = errors.New("download url expired")
	ErrBadSignature        = errors.New("download url signature mismatch")
	ErrMalformedDownloadQs = errors.New("malformed download query string")
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailRegistered = errors.New("email already registered")
	ErrUnauthorized    = errors.New("unauthorized")
)

// MalwareError 携带检出的病毒签名名，供安全日志与响应使用
type MalwareError struct {
	SignatureName string
}

func (e *MalwareError) Error() string {
	return fmt.Sprintf("malware detected: %s", e.SignatureName)
}

func (e *MalwareError) Unwrap() error {
	return ErrMalwareDetected
}

// DuplicateError 携带命中的既有资源ID
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identical content already stored as resource %s", e.ExistingID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateResource
}

// TransitionError 非法状态迁移，带当前状态描述
type TransitionError struct {
	ResourceID string
	From       string
	Op         string
	Reason     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s resource %s in state %s: %v", e.Op, e.ResourceID, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}
