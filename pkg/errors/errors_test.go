package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifiersMatchWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("failed to call provider: %w", ErrRateLimited)
	if !IsRateLimited(wrapped) {
		t.Fatalf("包装后仍应识别限流")
	}
	if IsInsufficientQuota(wrapped) {
		t.Fatalf("限流不应判为额度不足")
	}

	if !IsInsufficientQuota(ErrInsufficientQuota) {
		t.Fatalf("应识别额度不足")
	}
	if !IsFatalContent(ErrMalformedContent) || !IsFatalContent(ErrAccountBanned) {
		t.Fatalf("格式错误与封禁均属不可恢复")
	}
	if !IsRateLimited(New(CodeTooManyRequests, "too many requests")) {
		t.Fatalf("通用限流码也应识别为限流")
	}
	if IsFatalContent(errors.New("plain error")) {
		t.Fatalf("普通错误不应匹配任何类别")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	if ErrInsufficientQuota.HTTPStatus != http.StatusForbidden {
		t.Fatalf("额度不足应映射 403: %d", ErrInsufficientQuota.HTTPStatus)
	}
	if ErrRateLimited.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("限流应映射 429: %d", ErrRateLimited.HTTPStatus)
	}
	if New(CodeUnknown, "x").HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("未知码应映射 500")
	}
}

func TestAsAppErrorWrapsUnknown(t *testing.T) {
	appErr := AsAppError(errors.New("boom"))
	if appErr.Code != CodeUnknown {
		t.Fatalf("非业务错误应归为 unknown: %s", appErr.Code)
	}
	if !errors.Is(appErr, appErr.Err) {
		t.Fatalf("应保留底层错误")
	}
}
