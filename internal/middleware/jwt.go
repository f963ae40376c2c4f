package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextSigner is the key for signer session claims in gin context.
	ContextSigner = "signer"
)

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		response.Unauthorized(c, "missing authorization header")
		c.Abort()
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		response.Unauthorized(c, "invalid authorization header")
		c.Abort()
		return "", false
	}
	return parts[1], true
}

// JWT returns a middleware that validates an account JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			return
		}
		claims, err := jwtService.ValidateUser(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// Signer returns a middleware that validates a signer session JWT.
func Signer(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			return
		}
		claims, err := jwtService.ValidateSigner(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired signing session")
			c.Abort()
			return
		}
		c.Set(ContextSigner, claims)
		c.Next()
	}
}

// SignerClaims returns the signer session set by Signer.
func SignerClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextSigner)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
