package util

const (
	RemoteMinio = "minio"
	RemoteOSS   = "oss"
)

// 文件类型相关常量
const (
	MimeVideo       = "video/"
	MimePDF         = "application/pdf"
	MimeOctetStream = "application/octet-stream"
)
