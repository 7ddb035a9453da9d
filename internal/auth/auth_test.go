package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	raw, err := tokens.Issue("staff-1", "ana@clinic.test")
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, "ana@clinic.test", claims.Email)
}

func TestTokens_RejectsBadTokens(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	other, err := NewTokens("other-secret", time.Hour).Issue("staff-1", "")
	require.NoError(t, err)

	expiredIssuer := NewTokens("secret", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue("staff-1", "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "staff-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for name, raw := range map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue("staff-1", "")
	require.NoError(t, err)

	var seen *Claims
	h := Middleware(tokens, "token", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: raw})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "staff-1", seen.Subject)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})
}

func TestUnaryServerInterceptor(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue("staff-1", "")
	require.NoError(t, err)

	intercept := UnaryServerInterceptor(tokens, "/grpc.health.v1.Health/Check")
	handler := func(ctx context.Context, req any) (any, error) {
		if _, ok := ClaimsFromContext(ctx); !ok {
			return "anonymous", nil
		}
		return "ok", nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+raw))
	out, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/clinic.v1.Scheduling/ListSlots"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/clinic.v1.Scheduling/ListSlots"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	out, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", out)
}
