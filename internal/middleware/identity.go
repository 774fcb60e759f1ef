package middleware

// identity.go holds the helpers that read the authenticated principal back
// out of the echo context.

import (
    "github.com/labstack/echo/v4"
)

// PrincipalID returns the principal stored by JWTAuth and whether one is
// present.
func PrincipalID(c echo.Context) (string, bool) {
    if v, ok := c.Get(PrincipalKey).(string); ok && v != "" {
        return v, true
    }
    return "", false
}

// principalOrAnon is PrincipalID for rate limit keys, where unauthenticated
// callers share one bucket per IP.
func principalOrAnon(c echo.Context) string {
    if id, ok := PrincipalID(c); ok {
        return id
    }
    return "anon"
}
