package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-orders/app/types"
)

// AdminAuth guards the admin surface with a bearer JWT. The token must be
// HS256-signed with the shared admin secret and carry role=admin; the
// subject is exposed to handlers as "admin_id".
func AdminAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken := bearerToken(c)
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}

			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}

			role, _ := claims["role"].(string)
			if !strings.EqualFold(role, "admin") {
				return c.JSON(http.StatusForbidden, &types.ErrorResponse{Error: "forbidden"})
			}

			adminID, _ := claims["sub"].(string)
			if strings.TrimSpace(adminID) == "" {
				return c.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}

			c.Set("admin_id", adminID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
