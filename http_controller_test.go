package identity_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind   string            `json:"kind"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type sessionData struct {
	User struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		Role       string `json:"role"`
		IsVerified bool   `json:"isVerified"`
		IsActive   bool   `json:"isActive"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func newTestApp(f *fixture, limit int) *fiber.App {
	srv := identity.NewServer(identity.NewController(f.deps), identity.ServerOptions{
		RateLimitMax:    limit,
		RateLimitWindow: time.Minute,
		Logger:          testLogger{},
	})
	return srv.WrappedRouter()
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) (int, apiEnvelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))

	return resp.StatusCode, envelope
}

func loginOverHTTP(t *testing.T, app *fiber.App, email string) sessionData {
	t.Helper()

	status, body := doRequest(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, status)

	var session sessionData
	require.NoError(t, json.Unmarshal(body.Data, &session))
	return session
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 0)

	status, body := doRequest(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
}

func TestHTTP_Register(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1000)

	status, body := doRequest(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, body.Success)
	assert.Contains(t, body.Message, "Registration successful")

	var data struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, "alice@example.com", data.User["email"])
	assert.Equal(t, "USER", data.User["role"])
	assert.NotContains(t, data.User, "passwordHash")
	assert.NotContains(t, data.User, "verificationToken")

	t.Run("duplicate", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
			"name":     "Alice",
			"email":    "alice@example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusConflict, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindDuplicateEmail), body.Error.Kind)
	})

	t.Run("validation", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
			"name":     "A",
			"email":    "not-an-email",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindValidation), body.Error.Kind)
		assert.Contains(t, body.Error.Fields, "name")
		assert.Contains(t, body.Error.Fields, "email")
		assert.Contains(t, body.Error.Fields, "password")
	})

	t.Run("blank name", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
			"name":     "     ",
			"email":    "blank@example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindValidation), body.Error.Kind)
		assert.Contains(t, body.Error.Fields, "name")
	})
}

func TestHTTP_LoginAndProfile(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1000)
	f.register(t, "Alice", "alice@example.com")

	session := loginOverHTTP(t, app, "alice@example.com")
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "alice@example.com", session.User.Email)

	t.Run("bad credentials", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "wrong password",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindInvalidCredentials), body.Error.Kind)
	})

	t.Run("profile without token", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodGet, "/api/auth/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindUnauthenticated), body.Error.Kind)
	})

	t.Run("profile with refresh token", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodGet, "/api/auth/profile", session.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("profile", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodGet, "/api/auth/profile", session.AccessToken, nil)
		require.Equal(t, http.StatusOK, status)

		var data sessionData
		require.NoError(t, json.Unmarshal(body.Data, &data))
		assert.Equal(t, session.User.ID, data.User.ID)
	})

	t.Run("refresh", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/refresh", "", map[string]string{
			"refreshToken": session.RefreshToken,
		})
		require.Equal(t, http.StatusOK, status)

		var data sessionData
		require.NoError(t, json.Unmarshal(body.Data, &data))
		assert.NotEmpty(t, data.AccessToken)
	})

	t.Run("change password", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPut, "/api/users/password", session.AccessToken, map[string]string{
			"currentPassword": "wrong password",
			"newPassword":     "brand new password",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindIncorrectCurrentPassword), body.Error.Kind)

		status, _ = doRequest(t, app, http.MethodPut, "/api/users/password", session.AccessToken, map[string]string{
			"currentPassword": testPassword,
			"newPassword":     "brand new password",
		})
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestHTTP_VerifyEmail(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1000)
	f.register(t, "Alice", "alice@example.com")
	token := f.notifier.VerificationToken("alice@example.com")

	status, body := doRequest(t, app, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Email verified successfully", body.Message)

	status, body = doRequest(t, app, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": token})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, string(identity.KindInvalidOrExpiredToken), body.Error.Kind)

	t.Run("unknown token shapes read as expired", func(t *testing.T) {
		for _, candidate := range []string{"not-a-hex-token", "zz" + token[2:]} {
			status, body := doRequest(t, app, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": candidate})
			assert.Equal(t, http.StatusBadRequest, status, candidate)
			require.NotNil(t, body.Error)
			assert.Equal(t, string(identity.KindInvalidOrExpiredToken), body.Error.Kind, candidate)
		}
	})

	t.Run("missing token is a validation error", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/verify-email", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindValidation), body.Error.Kind)
	})
}

func TestHTTP_PasswordReset(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1000)
	f.register(t, "Alice", "alice@example.com")

	for _, email := range []string{"alice@example.com", "nobody@example.com"} {
		status, body := doRequest(t, app, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": email})
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, body.Message, "If an account exists")
	}

	token := f.notifier.ResetToken("alice@example.com")
	require.NotEmpty(t, token)
	assert.Empty(t, f.notifier.ResetToken("nobody@example.com"))

	status, body := doRequest(t, app, http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"token":    "not-a-hex-token",
		"password": "brand new password",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, string(identity.KindInvalidOrExpiredToken), body.Error.Kind)

	status, _ = doRequest(t, app, http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"token":    token,
		"password": "brand new password",
	})
	require.Equal(t, http.StatusOK, status)

	_, err := f.login("alice@example.com", "brand new password")
	assert.NoError(t, err)
}

func TestHTTP_AdminRoutes(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1000)
	f.registerAdmin(t, "admin@example.com")
	target := f.register(t, "Alice", "alice@example.com")

	admin := loginOverHTTP(t, app, "admin@example.com")
	regular := loginOverHTTP(t, app, "alice@example.com")
	path := "/api/admin/users/" + target.ID.String()

	t.Run("user token is forbidden", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodGet, path, regular.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindForbidden), body.Error.Kind)
	})

	t.Run("get", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodGet, path, admin.AccessToken, nil)
		assert.Equal(t, http.StatusOK, status)

		status, body := doRequest(t, app, http.MethodGet, "/api/admin/users/not-a-uuid", admin.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, status)
		require.NotNil(t, body.Error)
		assert.Equal(t, string(identity.KindNotFound), body.Error.Kind)
	})

	t.Run("role", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodPatch, path+"/role", admin.AccessToken, map[string]string{"role": "SUPERUSER"})
		assert.Equal(t, http.StatusBadRequest, status)

		status, body := doRequest(t, app, http.MethodPatch, path+"/role", admin.AccessToken, map[string]string{"role": "ADMIN"})
		require.Equal(t, http.StatusOK, status)

		var data sessionData
		require.NoError(t, json.Unmarshal(body.Data, &data))
		assert.Equal(t, "ADMIN", data.User.Role)
	})

	t.Run("status", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPatch, path+"/status", admin.AccessToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "User deactivated successfully", body.Message)
	})

	t.Run("update", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPut, path, admin.AccessToken, map[string]any{"name": "Alice Edited"})
		require.Equal(t, http.StatusOK, status)

		var data struct {
			User map[string]any `json:"user"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &data))
		assert.Equal(t, "Alice Edited", data.User["name"])

		status, body = doRequest(t, app, http.MethodPut, path, admin.AccessToken, map[string]any{"name": "   "})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, body.Error)
		assert.Contains(t, body.Error.Fields, "name")
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodDelete, path, admin.AccessToken, nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = doRequest(t, app, http.MethodDelete, path, admin.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestHTTP_RateLimit(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f, 1)

	body := map[string]string{"email": "nobody@example.com", "password": testPassword}

	status, _ := doRequest(t, app, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, envelope := doRequest(t, app, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(identity.KindRateLimited), envelope.Error.Kind)

	// outside the limited group
	status, _ = doRequest(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
