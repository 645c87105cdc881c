package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateSerial 生成产品序列号：<产品编码>-<8位大写十六进制>
func GenerateSerial(productCode string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s-%s", productCode, strings.ToUpper(id[:8]))
}
