package cache

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// Digest 返回正文的 BLAKE3-256 十六进制摘要，用于诊断与后台刷新的变更判断。
func Digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// identityFileName 将请求标识映射为定长文件名，避免 URL 中的特殊字符进入文件系统。
func identityFileName(identity string) string {
	sum := blake3.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:16]) + entrySuffix
}

// zstdEncoder/zstdDecoder 可并发复用，避免每次写入重复初始化。
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = errors.New("body is incompressible")

func compressBody(body []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(body, nil)
	if len(compressed) >= len(body) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressBody(compressed []byte, size int64) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(result)) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
