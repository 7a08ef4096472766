package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"cinemind/internal/domain/entity"
)

const fingerprintSeparator = "\x1f"

// NormalizeText 统一换行、压缩行内空白并去掉行首尾空白
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ' '
		}), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Fingerprint 由来源、序号与规范化文本计算内容指纹
func Fingerprint(sourceType entity.SourceType, sourceKey string, chunkIndex int, text string) string {
	h := sha256.New()
	h.Write([]byte(string(sourceType)))
	h.Write([]byte(fingerprintSeparator))
	h.Write([]byte(sourceKey))
	h.Write([]byte(fingerprintSeparator))
	h.Write([]byte(strconv.Itoa(chunkIndex)))
	h.Write([]byte(fingerprintSeparator))
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}
