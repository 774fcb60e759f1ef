package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a simple liveness endpoint used by load balancers and
// monitoring systems to verify that the process is running.
func Health(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Ready returns a readiness endpoint that reports 503 while check fails.
// The check gets a short timeout so a hung backend does not hang the health endpoint.
func Ready(check func(ctx context.Context) error) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := check(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": err.Error()})
        }
        return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
    }
}
