package service

import (
	"context"
	"io"

	"edubank_backend/internal/config"
	"edubank_backend/pkg/logger"

	"github.com/dutchcoders/go-clamd"
	"go.uber.org/zap"
)

// ScanVerdict 扫描结论。三种结果必须可区分：
// 干净、检出、扫描服务不可用——"未扫描"绝不能伪装成"干净"。
type ScanVerdict int

const (
	VerdictClean ScanVerdict = iota
	VerdictInfected
	VerdictUnavailable
)

// ScanResult 扫描结果，检出时带病毒签名名
type ScanResult struct {
	Verdict       ScanVerdict
	SignatureName string
}

// Scanner 病毒扫描接口，测试中以假实现替换
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) (*ScanResult, error)
}

// ClamdScanner 基于 clamd 守护进程的实现（INSTREAM 协议）
type ClamdScanner struct {
	client *clamd.Clamd
	cfg    *config.ScannerConfig
}

func NewClamdScanner(cfg *config.ScannerConfig) *ClamdScanner {
	return &ClamdScanner{
		client: clamd.NewClamd(cfg.ClamdAddr),
		cfg:    cfg,
	}
}

// Scan 将文件流交给 clamd 扫描。
// 守护进程不可达返回 VerdictUnavailable，不作为硬错误上抛，
// fail-open / fail-closed 的决策留给入库门控。
func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) (*ScanResult, error) {
	if err := s.client.Ping(); err != nil {
		logger.Log.Warn("clamd 不可达，资源将标记人工复核", zap.Error(err))
		return &ScanResult{Verdict: VerdictUnavailable}, nil
	}

	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		logger.Log.Warn("clamd 扫描流提交失败", zap.Error(err))
		return &ScanResult{Verdict: VerdictUnavailable}, nil
	}

	select {
	case res, ok := <-results:
		if !ok || res == nil {
			return &ScanResult{Verdict: VerdictUnavailable}, nil
		}
		switch res.Status {
		case clamd.RES_OK:
			return &ScanResult{Verdict: VerdictClean}, nil
		case clamd.RES_FOUND:
			return &ScanResult{Verdict: VerdictInfected, SignatureName: res.Description}, nil
		default:
			// RES_ERROR / RES_PARSE_ERROR：扫描端异常按不可用处理
			logger.Log.Warn("clamd 返回异常状态", zap.String("status", res.Status), zap.String("desc", res.Description))
			return &ScanResult{Verdict: VerdictUnavailable}, nil
		}
	case <-ctx.Done():
		return &ScanResult{Verdict: VerdictUnavailable}, nil
	}
}
