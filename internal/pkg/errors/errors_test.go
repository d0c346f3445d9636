package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetails(map[string]string{"attribute": "name"})

	if err.Details["attribute"] != "name" {
		t.Errorf("Details[attribute] = %s, want name", err.Details["attribute"])
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetail("attribute", "name").
		WithDetail("reason", "required")

	if err.Details["attribute"] != "name" {
		t.Errorf("Details[attribute] = %s, want name", err.Details["attribute"])
	}

	if err.Details["reason"] != "required" {
		t.Errorf("Details[reason] = %s, want required", err.Details["reason"])
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("bad input")
		if err.Code != CodeValidation {
			t.Errorf("Code = %s, want %s", err.Code, CodeValidation)
		}
	})

	t.Run("ValidationErrorf", func(t *testing.T) {
		err := ValidationErrorf("attribute %s missing in table %d", "name", 7)
		if err.Code != CodeValidation {
			t.Errorf("Code = %s, want %s", err.Code, CodeValidation)
		}
		if err.Message != "attribute name missing in table 7" {
			t.Errorf("Message = %s", err.Message)
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("query table")
		if err.Code != CodeNotFound {
			t.Errorf("Code = %s, want %s", err.Code, CodeNotFound)
		}
		if err.Message != "query table not found" {
			t.Errorf("Message = %s, want 'query table not found'", err.Message)
		}
	})

	t.Run("RetrievalError", func(t *testing.T) {
		err := RetrievalError("index query failed", errors.New("connection refused"))
		if err.Code != CodeRetrieval {
			t.Errorf("Code = %s, want %s", err.Code, CodeRetrieval)
		}
	})

	t.Run("IndexError", func(t *testing.T) {
		err := IndexError("scroll failed", errors.New("timeout"))
		if err.Code != CodeIndex {
			t.Errorf("Code = %s, want %s", err.Code, CodeIndex)
		}
	})

	t.Run("StorageError", func(t *testing.T) {
		err := StorageError("write failed", errors.New("disk full"))
		if err.Code != CodeStorage {
			t.Errorf("Code = %s, want %s", err.Code, CodeStorage)
		}
	})

	t.Run("TimeoutError", func(t *testing.T) {
		err := TimeoutError("retrieval")
		if err.Code != CodeTimeout {
			t.Errorf("Code = %s, want %s", err.Code, CodeTimeout)
		}
		if err.Message != "retrieval timed out" {
			t.Errorf("Message = %s", err.Message)
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		underlying := errors.New("db error")
		err := InternalError("failed", underlying)
		if err.Code != CodeInternal {
			t.Errorf("Code = %s, want %s", err.Code, CodeInternal)
		}
		if err.Unwrap() != underlying {
			t.Error("Underlying error not preserved")
		}
	})
}

func TestIsNotFound(t *testing.T) {
	notFound := NotFoundError("test")
	other := ValidationError("test")

	if !IsNotFound(notFound) {
		t.Error("IsNotFound(NotFoundError) = false, want true")
	}

	if IsNotFound(other) {
		t.Error("IsNotFound(ValidationError) = true, want false")
	}

	if IsNotFound(errors.New("standard error")) {
		t.Error("IsNotFound(standard error) = true, want false")
	}
}

func TestIsValidation(t *testing.T) {
	validation := ValidationError("test")
	other := NotFoundError("test")

	if !IsValidation(validation) {
		t.Error("IsValidation(ValidationError) = false, want true")
	}

	if IsValidation(other) {
		t.Error("IsValidation(NotFoundError) = true, want false")
	}
}

func TestPredicatesUnwrapWrappedErrors(t *testing.T) {
	err := fmt.Errorf("running pipeline: %w", TimeoutError("retrieval"))
	if !IsTimeout(err) {
		t.Error("IsTimeout should see through fmt.Errorf wrapping")
	}

	err = fmt.Errorf("loading evidences: %w", RetrievalError("index down", nil))
	if !IsRetrieval(err) {
		t.Error("IsRetrieval should see through fmt.Errorf wrapping")
	}
}
