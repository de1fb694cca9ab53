package card

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SessionCookieName is the login session cookie.
const SessionCookieName = "cardfolio_session"

type contextKey string

const userContextKey contextKey = "user"

// Server handles HTTP requests for accounts and cards.
type Server struct {
	service *Service
	mux     *http.ServeMux
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service) *Server {
	return NewServerWithMux(service, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// sessionToken pulls the session token from the cookie or, for API clients,
// a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requireAuth resolves the session to a user and stores it on the request
// context. Unauthenticated requests get 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := s.service.Authenticate(token)
		if err != nil {
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// requestUser returns the authenticated user placed by requireAuth.
func requestUser(r *http.Request) *User {
	user, _ := r.Context().Value(userContextKey).(*User)
	return user
}

// corsMiddleware adds CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes, most specific first.
func (s *Server) registerRoutes() {
	// Accounts
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/me", s.requireAuth(s.handleMe))

	// Cards
	s.mux.HandleFunc("GET /api/cards/{id}/image", s.requireAuth(s.handleGetCardImage))
	s.mux.HandleFunc("PUT /api/cards/{id}/image", s.requireAuth(s.handleUpdateCardImage))
	s.mux.HandleFunc("POST /api/cards/{id}/share", s.requireAuth(s.handleShareCard))
	s.mux.HandleFunc("GET /api/cards/{id}", s.requireAuth(s.handleGetCard))
	s.mux.HandleFunc("DELETE /api/cards/{id}", s.requireAuth(s.handleDeleteCard))
	s.mux.HandleFunc("GET /api/cards", s.requireAuth(s.handleListCards))
	s.mux.HandleFunc("POST /api/cards", s.requireAuth(s.handleCreateCard))

	// Capture pipeline
	s.mux.HandleFunc("POST /api/capture", s.requireAuth(s.handleCapture))

	// Static HTML interface (catch-all)
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)
	s.mux.HandleFunc("GET /static/app.js", s.handleStaticJS)
	s.mux.HandleFunc("GET /", s.handleIndex)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(s.mux.ServeHTTP)(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
