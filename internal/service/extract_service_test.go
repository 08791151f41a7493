package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, nativeText string, nativeErr error) (*PDFExtractor, *struct{ nativeCalls, ocrCalls int }) {
	t.Helper()
	calls := &struct{ nativeCalls, ocrCalls int }{}
	e := NewPDFExtractor(&config.ExtractConfig{
		OCRThreshold: 100,
		Timeout:      5 * time.Second,
		OCRLanguages: []string{"eng"},
		RasterDPI:    300,
	})
	e.native = func(ctx context.Context, path string) (string, int, error) {
		calls.nativeCalls++
		return nativeText, 4, nativeErr
	}
	e.ocr = func(ctx context.Context, path string) (string, int, error) {
		calls.ocrCalls++
		return "识别出的扫描件文本", 4, nil
	}
	return e, calls
}

func TestExtract_NativeAboveThreshold(t *testing.T) {
	text := strings.Repeat("a", 150)
	e, calls := newTestExtractor(t, text, nil)

	result, err := e.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.ExtractNative, result.Method)
	assert.Equal(t, text, result.Text)
	assert.Equal(t, 150, result.CharCount)
	assert.Equal(t, 4, result.PageCount)
	assert.Zero(t, calls.ocrCalls, "字符数达标不应触发 OCR")
}

func TestExtract_BelowThresholdFallsToOCR(t *testing.T) {
	e, calls := newTestExtractor(t, strings.Repeat("b", 99), nil)

	result, err := e.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.ExtractOCR, result.Method)
	assert.Equal(t, "识别出的扫描件文本", result.Text)
	assert.Equal(t, 1, calls.ocrCalls)
}

func TestExtract_ThresholdBoundaryStaysNative(t *testing.T) {
	// 恰好等于阈值按原生提取处理
	e, calls := newTestExtractor(t, strings.Repeat("c", 100), nil)

	result, err := e.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.ExtractNative, result.Method)
	assert.Zero(t, calls.ocrCalls)
}

func TestExtract_OCRFailureIsHardFailure(t *testing.T) {
	// 阈值决策之后方法即固定：OCR 失败不回退到原生提取结果
	e, _ := newTestExtractor(t, "too short", nil)
	e.ocr = func(ctx context.Context, path string) (string, int, error) {
		return "", 0, errors.New("tesseract crashed")
	}

	_, err := e.Extract(context.Background(), "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr extraction")
}

func TestExtract_NativeFailure(t *testing.T) {
	e, calls := newTestExtractor(t, "", errors.New("corrupt xref"))

	_, err := e.Extract(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "native extraction")
	assert.Zero(t, calls.ocrCalls)
}
