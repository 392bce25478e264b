package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	APIKeyHeader    = "X-API-Key"
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
	maxTimeSkew     = 60 * time.Second
	maxBodyBytes    = 1 << 20
)

// Signature returns the hex HMAC-SHA256 of timestamp followed by body.
func Signature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthMiddleware rejects requests that are not signed with the service credentials.
type AuthMiddleware struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
	log       zerolog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(apiKey, apiSecret string, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
		log:       log,
	}
}

// Wrap wraps an http.Handler with authentication. It has the shape chi's Use expects.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hmac.Equal([]byte(r.Header.Get(APIKeyHeader)), []byte(m.apiKey)) {
			m.deny(w, r, "Invalid API Key")
			return
		}

		timestampStr := r.Header.Get(TimestampHeader)
		if timestampStr == "" {
			m.deny(w, r, "Missing timestamp header")
			return
		}
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			m.deny(w, r, "Invalid timestamp format")
			return
		}
		skew := m.now().Sub(time.Unix(timestamp, 0))
		if skew > maxTimeSkew || skew < -maxTimeSkew {
			m.deny(w, r, "Timestamp expired")
			return
		}

		requestSignature := r.Header.Get(SignatureHeader)
		if requestSignature == "" {
			m.deny(w, r, "Missing signature header")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		expected := Signature(m.apiSecret, timestampStr, body)
		if !hmac.Equal([]byte(requestSignature), []byte(expected)) {
			m.deny(w, r, "Invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) deny(w http.ResponseWriter, r *http.Request, reason string) {
	m.log.Warn().Str("path", r.URL.Path).Str("reason", reason).Msg("unauthorized request")
	http.Error(w, reason, http.StatusUnauthorized)
}
