package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader carries the correlation ID in both directions.
	RequestIDHeader = "X-Request-ID"

	// maxRequestIDLen bounds client supplied IDs before they reach logs.
	maxRequestIDLen = 128

	ctxKeyRequestID contextKey = "request_id"
)

// RequestID reuses a well-formed X-Request-ID from the client or issues a
// UUIDv7, and exposes it on the request context and the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.Must(uuid.NewV7()).String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Header(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKeyRequestID, rid))
		c.Next()
	}
}

// validRequestID accepts 1..maxRequestIDLen printable ASCII characters.
func validRequestID(rid string) bool {
	if rid == "" || len(rid) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(rid); i++ {
		if rid[i] < 0x21 || rid[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}
