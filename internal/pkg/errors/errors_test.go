package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
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
		{
			name: "empty bid set",
			err:  EmptyBidSet(),
			want: "EMPTY_BID_SET: evaluation requires at least one bid",
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

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeInvalidWeightConfiguration, http.StatusBadRequest},
		{CodeEmptyBidSet, http.StatusBadRequest},
		{CodeIncompleteBid, http.StatusUnprocessableEntity},
		{CodeInvalidCostInput, http.StatusUnprocessableEntity},
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestIncompleteBid_Details(t *testing.T) {
	err := IncompleteBid("bid-7", []string{"price", "delivery_days"})

	if err.Details["bid_id"] != "bid-7" {
		t.Errorf("Details[bid_id] = %s, want bid-7", err.Details["bid_id"])
	}
	if err.Details["missing"] != "price,delivery_days" {
		t.Errorf("Details[missing] = %s, want price,delivery_days", err.Details["missing"])
	}
	if err.Message != "bid bid-7 is missing price, delivery_days" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIsCode_Wrapped(t *testing.T) {
	base := InvalidCostInput("bid-1", "base price must not be negative")
	wrapped := fmt.Errorf("scoring run: %w", base)

	if !IsCode(wrapped, CodeInvalidCostInput) {
		t.Error("IsCode() = false for wrapped AppError, want true")
	}
	if IsCode(wrapped, CodeEmptyBidSet) {
		t.Error("IsCode() matched the wrong code")
	}
	if IsCode(nil, CodeInvalidCostInput) {
		t.Error("IsCode(nil) = true, want false")
	}
	if got := Code(errors.New("plain")); got != "" {
		t.Errorf("Code(plain) = %q, want empty", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NotFoundError("evaluation")) {
		t.Error("IsNotFound() = false, want true")
	}
	if IsNotFound(ValidationError("bad")) {
		t.Error("IsNotFound() = true for validation error")
	}
	if !IsValidation(ValidationError("bad")) {
		t.Error("IsValidation() = false, want true")
	}
}

func TestRateLimitedError(t *testing.T) {
	err := RateLimitedError(30)
	if err.Details["retry_after"] != "30" {
		t.Errorf("Details[retry_after] = %s, want 30", err.Details["retry_after"])
	}
	if err := RateLimitedError(0); err.Details != nil {
		t.Errorf("Details = %v, want nil", err.Details)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"weight config", InvalidWeightConfiguration("weights sum to 0.9"), http.StatusBadRequest, CodeInvalidWeightConfiguration},
		{"wrapped not found", fmt.Errorf("load: %w", NotFoundError("evaluation")), http.StatusNotFound, CodeNotFound},
		{"plain error", errors.New("secret db dsn"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
			if tt.wantCode == CodeInternal && resp.Message != "An unexpected error occurred" {
				t.Errorf("internal message leaked: %q", resp.Message)
			}
		})
	}
}
