package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/snpLoans/pkg/access"
	"github.com/mcclellann/snpLoans/pkg/ledger"
	"github.com/mcclellann/snpLoans/pkg/models"
)

const sessionCookie = "snp_session"

type ctxKey int

const sessionKey ctxKey = iota

// Server exposes the statement views over HTTP.
type Server struct {
	gate         *access.Gate
	cookieSecure bool
	now          func() time.Time
}

func NewServer(gate *access.Gate, cookieSecure bool) *Server {
	return &Server{
		gate:         gate,
		cookieSecure: cookieSecure,
		now:          time.Now,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/logout", s.logoutHandler).Methods("POST")
	router.HandleFunc("/directory", s.directoryHandler).Methods("GET")

	// Routes below see the caller's session.
	private := router.NewRoute().Subrouter()
	private.Use(s.loadSession)
	private.HandleFunc("/session", s.sessionHandler).Methods("GET")
	private.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	private.HandleFunc("/users/{username}", s.userDetailHandler).Methods("GET")
	return router
}

// loadSession puts the caller's live session, if any, in the request context.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		session, err := s.gate.Current(r.Context(), token)
		switch {
		case err == nil:
			r = r.WithContext(context.WithValue(r.Context(), sessionKey, session))
		case !errors.Is(err, access.ErrNotAuthenticated):
			slog.Error("failed to resolve session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) (uuid.UUID, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return uuid.Nil, false
	}
	token, err := uuid.Parse(c.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return token, true
}

func sessionFrom(r *http.Request) *models.Session {
	session, _ := r.Context().Value(sessionKey).(*models.Session)
	return session
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string      `json:"username"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	session, err := s.gate.Login(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		s.writeAccessError(w, err)
		return
	}

	if prior, ok := sessionToken(r); ok {
		if err := s.gate.Logout(r.Context(), prior); err != nil {
			slog.Warn("failed to clear prior session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID.String(),
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("login", "username", session.Username, "role", session.Role)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if token, ok := sessionToken(r); ok {
		if err := s.gate.Logout(r.Context(), token); err != nil {
			s.writeAccessError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if session == nil {
		s.writeAccessError(w, access.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type loanListItem struct {
	Account models.Account          `json:"account"`
	Summary models.StatementSummary `json:"summary"`
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.gate.Accounts(r.Context(), access.PrincipalOf(sessionFrom(r)))
	if err != nil {
		s.writeAccessError(w, err)
		return
	}

	asOf := s.now()
	items := make([]loanListItem, 0, len(users))
	for _, u := range users {
		rows := ledger.Build(u, asOf)
		items = append(items, loanListItem{
			Account: u.Account(),
			Summary: ledger.Summarize(u.Loan, rows),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type userDetail struct {
	Account   models.Account          `json:"account"`
	Statement []models.StatementRow   `json:"statement"`
	Summary   models.StatementSummary `json:"summary"`
}

func (s *Server) userDetailHandler(w http.ResponseWriter, r *http.Request) {
	requested := mux.Vars(r)["username"]

	u, err := s.gate.Authorize(r.Context(), access.PrincipalOf(sessionFrom(r)), requested)
	if err != nil {
		s.writeAccessError(w, err)
		return
	}

	asOf := s.now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			http.Error(w, "Invalid as_of date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		asOf = t
	}

	rows := ledger.Build(u, asOf)
	writeJSON(w, http.StatusOK, userDetail{
		Account:   u.Account(),
		Statement: rows,
		Summary:   ledger.Summarize(u.Loan, rows),
	})
}

func (s *Server) directoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.gate.Directory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidCredentials):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, access.ErrNotAuthenticated):
		http.Error(w, "Please log in", http.StatusUnauthorized)
	case errors.Is(err, access.ErrNotFound):
		http.Error(w, "User not found or access denied", http.StatusNotFound)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
