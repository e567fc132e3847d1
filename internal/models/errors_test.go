package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf_WrappedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not found", NewNotFoundError("Thread", 7), CodeNotFound},
		{"wrapped validation", fmt.Errorf("create: %w", NewValidationError("bad")), CodeValidation},
		{"already member", NewAlreadyMemberError("c1", "u1"), CodeAlreadyMember},
		{"transient", NewTransientError("find", errors.New("conn reset")), CodeTransient},
		{"partial cascade", &PartialCascadeFailure{Deleted: []uint{1}}, CodePartialCascade},
		{"plain", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, IsConflict(NewAlreadyMemberError("c", "u")))
	assert.True(t, IsConflict(NewConflictError("username taken")))
	assert.False(t, IsConflict(NewNotFoundError("User", "u")))
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", NewTransientError("get", nil))))
	assert.False(t, IsRetryable(NewValidationError("x")))
	assert.True(t, IsNotFound(NewNotFoundError("Community", "c")))
	assert.True(t, IsValidation(NewValidationError("x")))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, StatusFor(NewValidationError("x")))
	assert.Equal(t, http.StatusNotFound, StatusFor(NewNotFoundError("User", 1)))
	assert.Equal(t, http.StatusConflict, StatusFor(NewAlreadyMemberError("c", "u")))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(NewTransientError("x", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(&PartialCascadeFailure{}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestPartialCascadeFailure_Message(t *testing.T) {
	t.Parallel()

	err := &PartialCascadeFailure{Deleted: []uint{1, 2, 3}, Pending: []string{"cache:user:1"}, Err: errors.New("redis down")}
	assert.Equal(t, "cascade deleted 3 threads but left 1 cleanup steps pending: redis down", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "redis down")
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantRetry  bool
		wantDetail string
		pending    int
	}{
		{name: "validation", err: NewValidationError("text is required"), wantStatus: http.StatusBadRequest, wantCode: CodeValidation},
		{name: "transient sets retry-after", err: NewTransientError("find", errors.New("timeout")), wantStatus: http.StatusServiceUnavailable, wantCode: CodeTransient, wantRetry: true, wantDetail: "timeout"},
		{name: "internal hides cause", err: NewInternalError(errors.New("secret dsn")), wantStatus: http.StatusInternalServerError, wantCode: CodeInternal},
		{name: "partial cascade lists pending", err: &PartialCascadeFailure{Deleted: []uint{4}, Pending: []string{"a", "b"}}, wantStatus: http.StatusInternalServerError, wantCode: CodePartialCascade, pending: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return RespondWithAppError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantRetry {
				assert.Equal(t, "1", resp.Header.Get("Retry-After"))
			}

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantDetail, body.Details)
			assert.Len(t, body.Pending, tt.pending)
		})
	}
}
