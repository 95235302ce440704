package service

import (
	"errors"
	"strings"

	"biz_manager/internal/model"

	"gorm.io/gorm"
)

// 领域错误分类，调用方用 errors.Is 判断。
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrBusy              = errors.New("resource busy, retry later")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrImmutableEntry    = model.ErrImmutableEntry
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation 驱动开启 TranslateError 时返回 gorm.ErrDuplicatedKey，未翻译的驱动错误按文本兜底。
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique") || strings.Contains(s, "Duplicate entry")
}
