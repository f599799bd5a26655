package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
	"github.com/noah-isme/exam-committee-api/pkg/response"
)

// RequireRoles admits only callers holding one of the listed designations.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Abort(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
