package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/capigrid/capigrid/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// currentUser returns the authenticated user stored by authMiddleware
func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware verifies the Bearer token and loads the user
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.sendError(w, http.StatusUnauthorized, "authorization required", "unauthorized")
			return
		}

		claims, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.sendError(w, http.StatusUnauthorized, "invalid or expired token", "unauthorized")
			return
		}

		user, err := s.users.GetByID(claims.Subject)
		if err != nil {
			s.logger.Error("failed to load user", "user_id", claims.Subject, "error", err)
			s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
			return
		}
		if user == nil || !user.IsActive {
			s.sendError(w, http.StatusUnauthorized, "account is not available", "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware requires the authenticated user to be an admin
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil || !user.IsAdmin {
			s.sendError(w, http.StatusForbidden, "admin access required", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
