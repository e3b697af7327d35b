package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeReadFailed,
			message:    "read failed",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "schema error",
			category:   CategoryValidation,
			code:       CodeSchemaInvalid,
			message:    "missing version",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "task error",
			category:   CategoryTask,
			code:       CodeTaskNotFound,
			message:    "task not found",
			cause:      nil,
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}

			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}

			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}

			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	if err.Suggestion != "check file path" {
		t.Errorf("expected suggestion 'check file path', got %s", err.Suggestion)
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Code != CodeFilePermission {
			t.Errorf("expected permission code, got %s", err.Code)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeEmptyFile, "test.csv", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["file_path"] != "test.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
	})

	t.Run("SchemaError", func(t *testing.T) {
		err := SchemaError("version is required", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Code != CodeSchemaInvalid {
			t.Errorf("expected schema_invalid code, got %s", err.Code)
		}
		if !strings.Contains(err.Message, "version is required") {
			t.Errorf("expected message to carry the detail, got %s", err.Message)
		}
	})

	t.Run("KeyRoleError", func(t *testing.T) {
		err := KeyRoleError("finance", "order_id", []string{"单号", "金额"})

		if err.Code != CodeKeyRoleUnresolved {
			t.Errorf("expected key_role_unresolved code, got %s", err.Code)
		}
		if err.Context["side"] != "finance" {
			t.Errorf("expected side context, got %v", err.Context["side"])
		}
	})

	t.Run("TaskError", func(t *testing.T) {
		err := TaskError(CodeTaskIncomplete, "task_abc123", nil)

		if err.Category != CategoryTask {
			t.Errorf("expected task category, got %s", err.Category)
		}
		if err.Context["task_id"] != "task_abc123" {
			t.Errorf("expected task_id context, got %v", err.Context["task_id"])
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		err := NetworkError(CodeCallbackFailed, "http://example.com/cb", errors.New("connection refused"))

		if err.Category != CategoryNetwork {
			t.Errorf("expected network category, got %s", err.Category)
		}
		if err.GetExitCode() != 6 {
			t.Errorf("expected exit code 6, got %d", err.GetExitCode())
		}
	})
}

func TestIsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if !IsReconcilerError(reconcilerErr) {
		t.Error("expected IsReconcilerError to return true for ReconcilerError")
	}
	if IsReconcilerError(genericErr) {
		t.Error("expected IsReconcilerError to return false for generic error")
	}
	if IsReconcilerError(nil) {
		t.Error("expected IsReconcilerError to return false for nil")
	}
}

func TestAsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsReconcilerError(reconcilerErr); !ok || extracted != reconcilerErr {
		t.Error("expected AsReconcilerError to extract ReconcilerError")
	}

	if _, ok := AsReconcilerError(genericErr); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}

	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
}

func TestHasCode(t *testing.T) {
	err := TaskError(CodeTaskNotFound, "task_missing", nil)

	if !HasCode(err, CodeTaskNotFound) {
		t.Error("expected HasCode to match the error's code")
	}
	if HasCode(err, CodeTaskIncomplete) {
		t.Error("expected HasCode to reject a different code")
	}
	if HasCode(errors.New("plain"), CodeTaskNotFound) {
		t.Error("expected HasCode to reject plain errors")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	result1 := WrapIfNeeded(reconcilerErr, CategoryParse, CodeReadFailed, "wrapped")
	if result1 != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	result2 := WrapIfNeeded(genericErr, CategoryParse, CodeReadFailed, "wrapped")
	if result2.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result2.Category != CategoryParse {
		t.Error("expected wrapped error to have correct category")
	}

	result3 := WrapIfNeeded(nil, CategoryParse, CodeReadFailed, "wrapped")
	if result3 != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestWarningCollector(t *testing.T) {
	collector := NewWarningCollector(0)

	if collector.HasWarnings() {
		t.Error("expected new collector to have no warnings")
	}
	if collector.String() != "no warnings" {
		t.Errorf("expected 'no warnings', got %q", collector.String())
	}

	collector.Add(ReconciliationError(CodeCleaningWarning, "divide_by_100 on amount", nil))
	collector.Add(ReconciliationError(CodeDuplicateKey, "matching", nil))
	collector.Addf(CategoryReconciliation, CodeCleaningWarning, "row %d: %s is not numeric", 3, "金额")
	collector.Add(nil)

	if got := collector.CountByCode(CodeCleaningWarning); got != 2 {
		t.Errorf("expected 2 cleaning warnings, got %d", got)
	}
	if got := collector.CountByCode(CodeDuplicateKey); got != 1 {
		t.Errorf("expected 1 duplicate key warning, got %d", got)
	}

	messages := collector.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if !strings.HasPrefix(messages[0], string(CodeCleaningWarning)) {
		t.Errorf("expected message to carry its code prefix, got %q", messages[0])
	}
	if !strings.Contains(messages[2], "row 3") {
		t.Errorf("expected formatted message, got %q", messages[2])
	}
}

func TestWarningCollectorCap(t *testing.T) {
	collector := NewWarningCollector(2)

	for i := 0; i < 5; i++ {
		collector.Addf(CategoryReconciliation, CodeCleaningWarning, "warning %d", i)
	}

	warnings := collector.Warnings()
	if len(warnings) != 2 {
		t.Fatalf("expected cap of 2 retained warnings, got %d", len(warnings))
	}

	messages := collector.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 2 messages plus drop notice, got %d", len(messages))
	}
	if !strings.Contains(messages[2], "3 additional warnings dropped") {
		t.Errorf("expected drop notice, got %q", messages[2])
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryTask, 5},
		{CategoryInternal, 5},
		{CategoryNetwork, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}
