package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/croftbase/member-console/services"
	"github.com/stretchr/testify/require"
)

type successEnvelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) successEnvelope {
	t.Helper()

	var env successEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteData(t *testing.T) {
	t.Parallel()

	t.Run("wraps the payload in the success envelope", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)

		writeData(rec, req, http.StatusCreated, jsonResponse{"user": map[string]string{"name": "Riley"}})

		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		env := decodeSuccess(t, rec)
		require.True(t, env.Success)
		user, ok := env.Data["user"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "Riley", user["name"])

		body := rec.Body.String()
		require.True(t, strings.HasSuffix(body, "\n"))
		require.Contains(t, body, "\t\"success\": true")
	})

	t.Run("falls back to a server error when the payload cannot marshal", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)

		writeData(rec, req, http.StatusOK, jsonResponse{"ch": make(chan int)})

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeError(t, rec)
		require.Equal(t, "internal", env.Error.Code)
	})
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fire        func(w http.ResponseWriter, r *http.Request)
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "bad request carries the reason",
			fire:        func(w http.ResponseWriter, r *http.Request) { badRequestResponse(w, r, errors.New("body must not be empty")) },
			wantStatus:  http.StatusBadRequest,
			wantCode:    "bad_request",
			wantMessage: "body must not be empty",
		},
		{
			name:        "not found uses the canonical message",
			fire:        func(w http.ResponseWriter, r *http.Request) { notFoundResponse(w, r) },
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "conflict",
			fire:        func(w http.ResponseWriter, r *http.Request) { conflictResponse(w, r, "email address is already in use") },
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "email address is already in use",
		},
		{
			name:        "gone",
			fire:        func(w http.ResponseWriter, r *http.Request) { goneResponse(w, r, "token has expired") },
			wantStatus:  http.StatusGone,
			wantCode:    "gone",
			wantMessage: "token has expired",
		},
		{
			name:        "unauthorized",
			fire:        func(w http.ResponseWriter, r *http.Request) { unauthorizedResponse(w, r, "authentication required") },
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "unauthorized",
			wantMessage: "authentication required",
		},
		{
			name:        "forbidden",
			fire:        func(w http.ResponseWriter, r *http.Request) { forbiddenResponse(w, r, "insufficient role") },
			wantStatus:  http.StatusForbidden,
			wantCode:    "forbidden",
			wantMessage: "insufficient role",
		},
		{
			name:        "server error hides the cause",
			fire:        func(w http.ResponseWriter, r *http.Request) { serverErrorResponse(w, r, errors.New("pq: connection refused")) },
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: "the server encountered a problem and could not process your request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

			tt.fire(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Body.String(), `"success": false`)

			env := decodeError(t, rec)
			require.False(t, env.Success)
			require.Equal(t, tt.wantCode, env.Error.Code)
			require.Equal(t, tt.wantMessage, env.Error.Message)
		})
	}
}

func TestMapServiceErrorToHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "not found",
			err:         services.ErrNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "invitation not found",
			err:         services.ErrInvitationNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "flag not found",
			err:         services.ErrFlagNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "unknown oauth provider",
			err:         services.ErrUnknownProvider,
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "consumed token reads as not found",
			err:         services.ErrTokenInvalid,
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "token is invalid or already used",
		},
		{
			name:        "expired token is gone",
			err:         services.ErrTokenExpired,
			wantStatus:  http.StatusGone,
			wantCode:    "gone",
			wantMessage: "token has expired",
		},
		{
			name:        "email taken",
			err:         services.ErrEmailTaken,
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "email address is already in use",
		},
		{
			name:        "flag name conflict",
			err:         services.ErrFlagNameConflict,
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "feature flag name already exists",
		},
		{
			name:        "self target",
			err:         services.ErrSelfTarget,
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "admins cannot perform this action on their own account",
		},
		{
			name:        "validation failed",
			err:         services.ErrValidationFailed,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_failed",
			wantMessage: "validation failed",
		},
		{
			name:        "password too short",
			err:         services.ErrPasswordTooShort,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_failed",
			wantMessage: "password must be at least 8 characters",
		},
		{
			name:        "invalid role",
			err:         services.ErrInvalidRole,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_failed",
			wantMessage: "invalid role",
		},
		{
			name:        "unsupported image type",
			err:         services.ErrUnsupportedImageType,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_failed",
			wantMessage: "unsupported image type",
		},
		{
			name:        "invalid credentials",
			err:         services.ErrInvalidCredentials,
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "unauthorized",
			wantMessage: "invalid email or password",
		},
		{
			name:        "authentication failed",
			err:         services.ErrAuthenticationFailed,
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "unauthorized",
			wantMessage: "authentication failed",
		},
		{
			name:        "invalid session",
			err:         services.ErrSessionInvalid,
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "unauthorized",
			wantMessage: "session is invalid or expired",
		},
		{
			name:        "forbidden operation",
			err:         services.ErrForbiddenOperation,
			wantStatus:  http.StatusForbidden,
			wantCode:    "forbidden",
			wantMessage: "operation not allowed for the current user",
		},
		{
			name:        "banned account",
			err:         services.ErrUserBanned,
			wantStatus:  http.StatusForbidden,
			wantCode:    "forbidden",
			wantMessage: "account is banned",
		},
		{
			name:        "wrapped sentinels unwrap",
			err:         fmt.Errorf("update user: %w", services.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "the requested resource could not be found",
		},
		{
			name:        "unknown errors become internal",
			err:         errors.New("pq: deadlock detected"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: "the server encountered a problem and could not process your request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/users", nil)

			mapServiceErrorToHTTP(rec, req, tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			env := decodeError(t, rec)
			require.False(t, env.Success)
			require.Equal(t, tt.wantCode, env.Error.Code)
			require.Equal(t, tt.wantMessage, env.Error.Message)
		})
	}
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	type input struct {
		Name   string `json:"name"`
		Locale string `json:"locale"`
	}

	decode := func(t *testing.T, body string) (input, error) {
		t.Helper()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))

		var dst input
		err := readJSON(rec, req, &dst)
		return dst, err
	}

	t.Run("decodes a valid body", func(t *testing.T) {
		t.Parallel()

		dst, err := decode(t, `{"name": "Riley", "locale": "fr"}`)
		require.NoError(t, err)
		require.Equal(t, "Riley", dst.Name)
		require.Equal(t, "fr", dst.Locale)
	})

	t.Run("rejects an empty body", func(t *testing.T) {
		t.Parallel()

		_, err := decode(t, "")
		require.EqualError(t, err, "body must not be empty")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()

		_, err := decode(t, `{"name":`)
		require.Error(t, err)
		require.Contains(t, err.Error(), "body contains badly-formed JSON")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		_, err := decode(t, `{"name": "Riley", "admin": true}`)
		require.EqualError(t, err, `body contains unknown key "admin"`)
	})

	t.Run("rejects a wrong field type", func(t *testing.T) {
		t.Parallel()

		_, err := decode(t, `{"name": 12}`)
		require.EqualError(t, err, `body contains incorrect JSON type for field "name"`)
	})

	t.Run("rejects multiple JSON values", func(t *testing.T) {
		t.Parallel()

		_, err := decode(t, `{"name": "Riley"}{"name": "Casey"}`)
		require.EqualError(t, err, "body must only contain a single JSON value")
	})

	t.Run("rejects bodies over the size cap", func(t *testing.T) {
		t.Parallel()

		body := `{"name": "` + strings.Repeat("a", 1_100_000) + `"}`
		_, err := decode(t, body)
		require.EqualError(t, err, "body must not be larger than 1048576 bytes")
	})
}
