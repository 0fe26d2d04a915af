package middleware

import (
	"github.com/gin-gonic/gin"

	jwtpkg "qrauth/codehub/pkg/jwt"
	"qrauth/codehub/pkg/response"
)

// AdminAuth checks that the authenticated account is in the admin list.
// Must be used after JWTAuth middleware.
func AdminAuth(adminAccountIDs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminAccountIDs))
	for _, id := range adminAccountIDs {
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsVal, exists := c.Get(ContextKeyAccountClaims)
		if !exists {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}
		claims, ok := claimsVal.(*jwtpkg.Claims)
		if !ok {
			response.Unauthorized(c, "invalid claims")
			c.Abort()
			return
		}

		accountID, err := claims.AccountID()
		if err != nil {
			response.Unauthorized(c, "invalid account id")
			c.Abort()
			return
		}

		if _, isAdmin := allowed[accountID.String()]; !isAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
