package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// signatureBlockSize 分块读取大小，避免为超大文件整体驻留内存
const signatureBlockSize = 256 * 1024

// ComputeSignature 流式计算内容 SHA-256，作为全局去重键。
// 与文件名、上传者无关：同一字节流只允许存在一份副本。
func ComputeSignature(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	buf := make([]byte, signatureBlockSize)
	n, err := io.CopyBuffer(hasher, r, buf)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// TeeSignatureWriter 写入 w 的同时累积 SHA-256，
// 落盘与签名计算一次遍历完成
type TeeSignatureWriter struct {
	w    io.Writer
	h    hash.Hash
	size int64
}

func NewTeeSignatureWriter(w io.Writer) *TeeSignatureWriter {
	return &TeeSignatureWriter{w: w, h: sha256.New()}
}

func (t *TeeSignatureWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.h.Write(p[:n])
		t.size += int64(n)
	}
	return n, err
}

func (t *TeeSignatureWriter) Signature() string {
	return hex.EncodeToString(t.h.Sum(nil))
}

func (t *TeeSignatureWriter) Size() int64 {
	return t.size
}
