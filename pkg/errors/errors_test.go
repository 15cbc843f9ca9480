package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeVersionConflict, status: http.StatusConflict, publicMsg: "cart was changed by another request", retryable: true, detailsOK: true},
		{code: CodeItemUnavailable, status: http.StatusUnprocessableEntity, publicMsg: "item is no longer available", detailsOK: true},
		{code: CodeConfirmationRequired, status: http.StatusConflict, publicMsg: "confirmation required before merging this cart", detailsOK: true},
		{code: CodeSessionInvalid, status: http.StatusConflict, publicMsg: "checkout session is no longer usable", detailsOK: true},
		{code: CodeRateLimited, status: http.StatusTooManyRequests, publicMsg: "too many requests", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeVersionConflict, "stale version")
	if base.Code() != CodeVersionConflict {
		t.Fatalf("expected version conflict code, got %s", base.Code())
	}
	if base.Message() != "stale version" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detailed := base.WithDetails(map[string]any{"current_version": 7})
	if detailed.Details() == nil {
		t.Fatalf("expected details to be attached")
	}

	cause := stdErrors.New("row gone")
	wrapped := Wrap(CodeDependency, cause, "update cart")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("wrapped error should unwrap to cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: update cart" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := New(CodeItemUnavailable, "sold out")
	wrapped := Wrap(CodeDependency, err, "mutation failed")

	if typed := As(wrapped); typed == nil || typed.Code() != CodeDependency {
		t.Fatalf("As should find the outermost typed error")
	}
	if !IsCode(err, CodeItemUnavailable) {
		t.Fatalf("IsCode should match direct code")
	}
	if IsCode(nil, CodeItemUnavailable) {
		t.Fatalf("IsCode on nil should be false")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("As on untyped error should be nil")
	}
}
