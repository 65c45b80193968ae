package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
)

// Auth returns API-key authentication middleware. Callers present a key as
// either `X-API-Key: <key>` or `Authorization: Bearer <key>`.
//
// Keys are compared as SHA-256 digests in constant time, so neither key
// length nor a shared prefix leaks through response timing. An empty key
// list disables authentication (open access).
func Auth(apiKeys []string) gin.HandlerFunc {
	if len(apiKeys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	digests := make([][sha256.Size]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(c *gin.Context) {
		key := presentedKey(c)
		if key == "" {
			unauthorized(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}
		if !keyMatches(digests, key) {
			unauthorized(c, "invalid API key")
			return
		}
		c.Set("api_key", key)
		c.Next()
	}
}

func keyMatches(digests [][sha256.Size]byte, key string) bool {
	sum := sha256.Sum256([]byte(key))
	for i := range digests {
		if subtle.ConstantTimeCompare(digests[i][:], sum[:]) == 1 {
			return true
		}
	}
	return false
}

// presentedKey tries X-API-Key first, then Authorization: Bearer.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ExtractResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Kind:    models.ErrKindUnauthorized,
			Message: msg,
		},
	})
}
