// Package server exposes the HTTP API in front of the application
// service.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"audioscribe/internal/app"
	"audioscribe/internal/lifecycle"
	"audioscribe/internal/ratelimit"
	"audioscribe/internal/util"
	"audioscribe/pkg/auth"
	"audioscribe/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	RedisAddr                  string
	RedisPassword              string
	LoginRateLimitPerMinute    int
	PasswordRateLimitPerMinute int
	MaxUploadBytes             int64
}

// Server exposes HTTP endpoints for the transcription backend.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	maxUploadBytes  int64
	loginLimiter    *ratelimit.FixedWindowLimiter
	passwordLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	passwordLimit := cfg.PasswordRateLimitPerMinute
	if passwordLimit <= 0 {
		passwordLimit = 10
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "audioscribe:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	passwordLimiter, err := newLimiter("password", passwordLimit)
	if err != nil {
		return nil, err
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 4 << 30
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		maxUploadBytes:  maxUploadBytes,
		loginLimiter:    loginLimiter,
		passwordLimiter: passwordLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/verify", s.authenticated(s.handleVerify))
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/auth/change-password", s.authenticated(s.handleChangePassword))

	// user administration
	s.mux.Handle("/api/users", s.require(opUsersManage, s.handleUsers))
	s.mux.Handle("/api/users/", s.require(opUsersManage, s.handleUserByID))

	// languages (reads for any authenticated user)
	s.mux.Handle("/api/languages", s.authenticated(s.handleLanguages))
	s.mux.Handle("/api/languages/", s.require(opLanguagesManage, s.handleLanguageByID))

	// projects, folders, segments
	s.mux.Handle("/api/projects", s.authenticated(s.handleProjects))
	s.mux.Handle("/api/projects/", s.authenticated(s.handleProjectByID))
	s.mux.Handle("/api/folders/", s.authenticated(s.handleFolderByID))
	s.mux.Handle("/api/segments/", s.authenticated(s.handleSegmentByID))

	// batch ingestion
	s.mux.Handle("/api/upload-batch", s.require(opUpload, s.handleUploadBatch))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		next(w, r, user)
	})
}

// require authenticates and then gates the whole route on one
// operation. Handlers with mixed read/write semantics gate their write
// methods themselves via requireRole.
func (s *Server) require(op operation, next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		if !roleAllowed(op, user.Role) {
			s.audit(r, "access.check", "fail", "user_id", user.ID, "operation", string(op), "role", string(user.Role))
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

// requireRole gates a single method inside a mixed handler.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, user domain.User, op operation) bool {
	if roleAllowed(op, user.Role) {
		return true
	}
	s.audit(r, "access.check", "fail", "user_id", user.ID, "operation", string(op), "role", string(user.Role))
	writeError(w, http.StatusForbidden, "forbidden")
	return false
}

// authorize resolves the bearer token to an active user. The returned
// error is an app sentinel so the caller can map deactivated accounts to
// their own 401 reason.
func (s *Server) authorize(r *http.Request) (domain.User, error) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "token.verify", "fail", "reason", "missing_token")
		return domain.User{}, app.ErrInvalidToken
	}
	user, _, err := s.app.VerifyToken(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, app.ErrAccountDeactivated) {
			reason = "account_deactivated"
		}
		s.audit(r, "token.verify", "fail", "reason", reason)
		return domain.User{}, err
	}
	return user, nil
}

// auth handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "username", req.Username)
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int64(s.app.SessionTTL().Seconds()),
		User:      user,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
		writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
	default:
		methodNotAllowed(w)
	}
}

// handleLogout exists so clients have a uniform endpoint to hit; tokens
// are stateless and simply age out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.audit(r, "logout", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.passwordLimiter, "too many password attempts") {
		s.audit(r, "password.change", "rate_limited", "user_id", user.ID)
		return
	}
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, "password.change", "fail", "user_id", user.ID)
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "password.change", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// user administration handlers

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.app.ListUsers()
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req createUserRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, err := s.app.CreateUser(app.CreateUserInput{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     domain.UserRole(req.Role),
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := s.app.GetUser(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch, http.MethodPut:
		var req updateUserRequest
		if !decodeBody(w, r, &req) {
			return
		}
		var role *domain.UserRole
		if req.Role != nil {
			converted := domain.UserRole(*req.Role)
			role = &converted
		}
		user, err := s.app.UpdateUser(id, app.UpdateUserInput{
			Email:    req.Email,
			Role:     role,
			IsActive: req.IsActive,
			Password: req.Password,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := s.app.DeleteUser(id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// language handlers

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		langs, err := s.app.ListLanguages()
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"languages": langs})
	case http.MethodPost:
		if !s.requireRole(w, r, user, opLanguagesManage) {
			return
		}
		var req createLanguageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lang, err := s.app.CreateLanguage(req.Code, req.Name)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lang)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLanguageByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/languages/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var req updateLanguageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lang, err := s.app.UpdateLanguage(id, req.Code, req.Name, req.IsActive)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lang)
	case http.MethodDelete:
		if err := s.app.DeleteLanguage(id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// helpers

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, requestErrorMessage(err))
		return false
	}
	return true
}

func requestErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("invalid field %s (%s)", fe.Field(), fe.Tag())
	}
	return "invalid request body"
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrAccountDeactivated):
		writeError(w, http.StatusUnauthorized, app.ErrAccountDeactivated.Error())
	case errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrLanguageNotFound),
		errors.Is(err, app.ErrProjectNotFound),
		errors.Is(err, app.ErrFolderNotFound),
		errors.Is(err, app.ErrSegmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUsernameTaken),
		errors.Is(err, app.ErrLanguageCodeTaken),
		errors.Is(err, app.ErrLanguageInUse),
		errors.Is(err, app.ErrProjectNameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, "segment ids must match the folder's segments exactly")
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, app.ErrUsernameAndPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// audit logs through the request-scoped logger so security events carry
// the request id.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
