package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zaptask/zaptask/pkg/models"
)

// Centralized HTTP error responses. Internal error details are logged with
// the request path but never leak into the response body; clients get a
// stable error code plus a generic message.

// ValidationError responds 400 for malformed or invalid input
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "The request contains invalid or missing fields",
	})
}

// DatabaseError responds 500 for persistence failures
func DatabaseError(c echo.Context, err error) error {
	log.Printf("[DATABASE ERROR] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "A storage error occurred, please try again later",
	})
}

// InternalError responds 500 for unexpected failures
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred, please try again later",
	})
}

// UnauthorizedError responds 401. The reason is logged, not returned.
func UnauthorizedError(c echo.Context, reason string) error {
	log.Printf("[UNAUTHORIZED] %s %s: %s", c.Request().Method, c.Request().URL.Path, reason)
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "Authentication required",
	})
}

// ForbiddenError responds 403. The reason is logged, not returned.
func ForbiddenError(c echo.Context, reason string) error {
	log.Printf("[FORBIDDEN] %s %s: %s", c.Request().Method, c.Request().URL.Path, reason)
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have access to this resource",
	})
}

// NotFoundError responds 404. The resource name is logged, not returned.
func NotFoundError(c echo.Context, resource string) error {
	log.Printf("[NOT FOUND] %s %s: %s", c.Request().Method, c.Request().URL.Path, resource)
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found",
	})
}

// ConflictError responds 409 with the given message
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}
