package entity

import (
	"errors"
	"fmt"
)

// 核心错误分类
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrOrderNotFound    = errors.New("work order not found")
	ErrMaterialShortage = errors.New("material shortage")
)

// ShortageError 扣料时库存不足，携带缺料物料信息
type ShortageError struct {
	MaterialCode string
	MaterialName string
	Required     int
	Available    int
}

func (e *ShortageError) Error() string {
	return "MATERIAL_SHORTAGE:" + e.MaterialName
}

// Is 使 errors.Is(err, ErrMaterialShortage) 成立
func (e *ShortageError) Is(target error) bool {
	return target == ErrMaterialShortage
}

// Invalidf 构造 ErrInvalidInput 包装错误
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
