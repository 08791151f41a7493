package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/pkg/logger"

	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// ExtractResult 单次提取的产出
type ExtractResult struct {
	Text      string
	Method    model.ExtractionMethod
	PageCount int
	CharCount int
}

// Extractor 文本提取接口，测试中以假实现替换
type Extractor interface {
	Extract(ctx context.Context, path string) (*ExtractResult, error)
}

// PDFExtractor 先做原生结构化提取；字符数低于阈值则按扫描件处理，
// 光栅化后逐页 OCR。阈值判定基于提取结果而非文件元数据，
// 混排原生页与扫描页的 PDF 同样适用。
type PDFExtractor struct {
	cfg *config.ExtractConfig

	// 两个提取步骤以函数字段注入，测试替换
	native func(ctx context.Context, path string) (string, int, error)
	ocr    func(ctx context.Context, path string) (string, int, error)
}

func NewPDFExtractor(cfg *config.ExtractConfig) *PDFExtractor {
	e := &PDFExtractor{cfg: cfg}
	e.native = e.extractNative
	e.ocr = e.extractOCR
	return e
}

// Extract 整篇文档受单一超时约束。阈值决策之后方法即固定：
// OCR 中途失败就是本次运行的硬失败，不再回退，保证行为可测可重放。
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*ExtractResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	text, pageCount, err := e.native(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("native extraction: %w", err)
	}

	charCount := len([]rune(text))
	if charCount >= e.cfg.OCRThreshold {
		return &ExtractResult{
			Text:      text,
			Method:    model.ExtractNative,
			PageCount: pageCount,
			CharCount: charCount,
		}, nil
	}

	logger.Log.Info("原生提取字符数低于阈值，降级OCR",
		zap.String("path", path),
		zap.Int("chars", charCount),
		zap.Int("threshold", e.cfg.OCRThreshold))

	ocrText, ocrPages, err := e.ocr(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ocr extraction: %w", err)
	}

	return &ExtractResult{
		Text:      ocrText,
		Method:    model.ExtractOCR,
		PageCount: ocrPages,
		CharCount: len([]rune(ocrText)),
	}, nil
}

func (e *PDFExtractor) extractNative(ctx context.Context, path string) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	pageCount := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页解析失败不中断：纯图片页在原生提取里本来就没有文本
			continue
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), pageCount, nil
}

// extractOCR 光栅化 + 逐页识别，按页序拼接
func (e *PDFExtractor) extractOCR(ctx context.Context, path string) (string, int, error) {
	tmpDir, err := os.MkdirTemp("", "edubank_ocr_")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(tmpDir)

	pages, err := e.rasterize(ctx, path, tmpDir)
	if err != nil {
		return "", 0, err
	}
	if len(pages) == 0 {
		return "", 0, fmt.Errorf("rasterization produced no pages for %s", path)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.cfg.OCRLanguages...); err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		if err := client.SetImage(p); err != nil {
			return "", 0, err
		}
		text, err := client.Text()
		if err != nil {
			return "", 0, fmt.Errorf("ocr page %s: %w", filepath.Base(p), err)
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), len(pages), nil
}

// rasterize 调用 pdftoppm 将每页渲染为 PNG。
// 输出文件名带定宽页号，字典序即页序。
func (e *PDFExtractor) rasterize(ctx context.Context, path, outDir string) ([]string, error) {
	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-r", strconv.Itoa(e.cfg.RasterDPI),
		"-png",
		path, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)
	return pages, nil
}
