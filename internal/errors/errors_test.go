package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestNewUsesRegisteredDefaults(t *testing.T) {
	err := New(CodeTimeout, "")
	if err.Message() != "operation timed out" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if !err.Retryable() || !err.ShouldAlert() || err.Severity() != SeverityWarning {
		t.Fatalf("unexpected attributes: retryable=%v alert=%v severity=%s", err.Retryable(), err.ShouldAlert(), err.Severity())
	}
}

func TestOptionsOverrideAttributes(t *testing.T) {
	err := New(CodeStorageFailure, "写入失败",
		WithRetryable(false),
		WithAlert(false),
		WithSeverity(SeverityInfo),
		WithMetadata("table", "swap_intents"),
	)
	if err.Retryable() || err.ShouldAlert() || err.Severity() != SeverityInfo {
		t.Fatalf("options not applied")
	}
	meta := err.Metadata()
	meta["table"] = "mutated"
	if err.Metadata()["table"] != "swap_intents" {
		t.Fatalf("metadata must be returned as a copy")
	}
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := fmt.Errorf("outer: %w", Wrap(CodeStorageFailure, cause, "无法连接到 MySQL"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause lost in chain")
	}
	if CodeOf(err) != CodeStorageFailure {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if !stdErrors.Is(err, New(CodeStorageFailure, "other message")) {
		t.Fatalf("errors with the same code should match")
	}
	if stdErrors.Is(err, New(CodeTimeout, "")) {
		t.Fatalf("errors with different codes must not match")
	}
}

func TestHelpersOnPlainErrors(t *testing.T) {
	plain := stdErrors.New("boom")
	if CodeOf(plain) != CodeUnknown {
		t.Fatalf("plain error should map to UNKNOWN")
	}
	if RetryableError(plain) || ShouldAlert(plain) {
		t.Fatalf("plain errors are neither retryable nor alerting")
	}
	if SeverityOf(plain) != SeverityCritical {
		t.Fatalf("unexpected severity %s", SeverityOf(plain))
	}
	if CodeOf(nil) != CodeUnknown {
		t.Fatalf("nil should map to UNKNOWN")
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Retryable: true})

	err := New(code, "")
	if err.Message() != "custom" || !err.Retryable() || err.ShouldAlert() {
		t.Fatalf("custom attributes not used: %+v", AttributesOf(code))
	}
	if AttributesOf("NEVER_REGISTERED").Message != "unknown error" {
		t.Fatalf("unregistered codes should fall back to UNKNOWN")
	}
}

func TestInvalidInputCarriesField(t *testing.T) {
	err := InvalidInput("amount", "数量必须为正整数")
	if err.Code() != CodeInvalidInput || err.Metadata()["field"] != "amount" {
		t.Fatalf("unexpected error %v", err)
	}
	if err.Error() != "[INVALID_INPUT] 数量必须为正整数" {
		t.Fatalf("unexpected text %q", err.Error())
	}
}
