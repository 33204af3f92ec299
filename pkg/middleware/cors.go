package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// Origins, methods and headers browsers may use against the API.
// Exported so tests assert against the exact lists main.go wires in.
var (
	AllowedOrigins = []string{
		"http://localhost:5173", // Development (Vite dev server)
		"http://localhost:3000", // Development (docker-compose frontend)
		"https://zaptask.io",    // Production
		"https://www.zaptask.io",
	}

	AllowedMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}

	AllowedHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
)

// CORSConfig returns the CORS configuration used by the application.
// Centralised here so that both main.go and tests reference the same config.
func CORSConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins:     AllowedOrigins,
		AllowMethods:     AllowedMethods,
		AllowHeaders:     AllowedHeaders,
		AllowCredentials: true,
	}
}
