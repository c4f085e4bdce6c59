package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// claimsKey is the Gin context key under which verified claims are stored.
const claimsKey = "helpdesk_claims"

// RequireUser returns a middleware that rejects requests without a valid
// bearer token. Verified claims are stored on the context.
func RequireUser(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := bearerClaims(c, tokens)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireAdmin returns a middleware that additionally requires the ADMIN role.
func RequireAdmin(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := bearerClaims(c, tokens)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromCtx returns the verified claims stored by the middlewares, or nil.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// bearerClaims extracts and verifies the Authorization bearer token.
func bearerClaims(c *gin.Context, tokens *TokenIssuer) *Claims {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	claims, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil
	}
	return claims
}
