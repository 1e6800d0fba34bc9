package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acredita/respaldo/internal/api/dto"
	"github.com/acredita/respaldo/internal/core/service"
)

const (
	AuthHeaderKey  = "Authorization"
	AuthContextKey = "auth"
)

// AuthMiddleware creates a JWT authentication middleware reading the
// Authorization header
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Missing authorization header",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid authorization header format. Expected 'Bearer <token>'",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		claims, err := authService.ResolvePrincipal(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid or expired token",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		c.Set(AuthContextKey, claims)

		c.Next()
	}
}

// QueryTokenAuthMiddleware authenticates from a ?token= query parameter. It
// exists for download links opened outside an API client, where setting a
// header is not possible. The credential source differs from AuthMiddleware
// but the validation ends in the same ResolvePrincipal call.
func QueryTokenAuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Missing token parameter",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		claims, err := authService.ResolvePrincipal(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid or expired token",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		c.Set(AuthContextKey, claims)

		c.Next()
	}
}

// RequireRole gates a route group on a role claim. Must run after one of the
// auth middlewares.
func RequireRole(authService *service.AuthService, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := GetAuthClaims(c)
		if err := authService.RequireRole(claims, role); err != nil {
			code := http.StatusForbidden
			message := "insufficient role"
			var svcErr *service.ServiceError
			if errors.As(err, &svcErr) {
				code = svcErr.Code
				message = svcErr.Message
			}
			c.JSON(code, dto.ErrorResponse{
				Error:   http.StatusText(code),
				Message: message,
				Code:    code,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetAuthClaims retrieves auth claims from context
func GetAuthClaims(c *gin.Context) (*service.TokenClaims, bool) {
	claims, exists := c.Get(AuthContextKey)
	if !exists {
		return nil, false
	}

	tokenClaims, ok := claims.(*service.TokenClaims)
	return tokenClaims, ok
}
