package server

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"catalogd/internal/account"
	"catalogd/internal/catalog"
	"catalogd/internal/domain"
	"catalogd/internal/ratelimit"
	"catalogd/internal/util"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionCookie = "catalogd_session"
	flashCookie   = "catalogd_flash"

	// Generic inline error for failed catalog mutations.
	msgSaveFailed = "Unable to save changes"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Catalog                 *catalog.Catalog
	Accounts                *account.Accounts
	RedisAddr               string
	RedisPassword           string
	LoginRateLimitPerMinute int
	MaxUploadBytes          int64
	SessionTTL              time.Duration
}

// Server exposes the navigable surface: public catalog pages and the
// session-guarded admin dashboard.
type Server struct {
	catalog        *catalog.Catalog
	accounts       *account.Accounts
	templates      *template.Template
	mux            *http.ServeMux
	loginLimiter   *ratelimit.FixedWindowLimiter
	maxUploadBytes int64
	sessionTTL     time.Duration
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "catalogd:ratelimit:login", loginLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		catalog:        cfg.Catalog,
		accounts:       cfg.Accounts,
		templates:      templates,
		mux:            http.NewServeMux(),
		loginLimiter:   limiter,
		maxUploadBytes: maxUploadBytes,
		sessionTTL:     sessionTTL,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// public pages
	s.mux.HandleFunc("/", s.handleLanding)
	s.mux.HandleFunc("/services", s.handleServices)
	s.mux.HandleFunc("/service/", s.handleServiceDetail)

	// auth
	s.mux.HandleFunc("/admin-login", s.handleLogin)
	s.mux.HandleFunc("/admin-logout", s.handleLogout)

	// admin (session required)
	s.mux.Handle("/admin", s.guarded(s.handleAdmin))
	s.mux.Handle("/admin/services", s.guarded(s.handleAddService))
	s.mux.Handle("/admin/services/", s.guarded(s.handleServiceAction))
	s.mux.Handle("/admin/files/upload", s.guarded(s.handleUploadFile))
	s.mux.Handle("/admin/files/delete", s.guarded(s.handleDeleteFile))
	s.mux.Handle("/admin/files/link", s.guarded(s.handleSetPurchaseLink))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// session guard

type adminHandler func(http.ResponseWriter, *http.Request, domain.User)

// guarded gates admin pages behind an authenticated session. Callers without
// a valid session are redirected to the login page before any catalog data
// is rendered.
func (s *Server) guarded(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok || user.Role != domain.RoleAdmin {
			s.audit(r, "admin.authorize", "fail")
			http.Redirect(w, r, "/admin-login", http.StatusSeeOther)
			return
		}
		s.audit(r, "admin.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) sessionUser(r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return domain.User{}, false
	}
	return s.accounts.UserFromToken(cookie.Value)
}

// public pages

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.renderError(w, http.StatusNotFound, "Page not found")
		return
	}
	s.render(w, http.StatusOK, "landing.html", nil)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.catalog.Refresh(r.Context()); err != nil {
		s.renderError(w, http.StatusBadGateway, "Unable to load")
		return
	}
	s.render(w, http.StatusOK, "services.html", map[string]any{
		"Services": s.catalog.Services(),
	})
}

func (s *Server) handleServiceDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/service/")
	if id == "" || strings.Contains(id, "/") {
		s.renderError(w, http.StatusNotFound, "Service not found")
		return
	}
	view, err := s.serviceView(r, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.renderError(w, http.StatusNotFound, "Service not found")
			return
		}
		s.renderError(w, http.StatusBadGateway, "Unable to load")
		return
	}
	s.render(w, http.StatusOK, "service.html", view)
}

// auth handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, "login.html", map[string]any{})
	case http.MethodPost:
		key := "login|" + util.ClientIP(r)
		if !s.loginLimiter.Allow(key) {
			s.audit(r, "login", "rate_limited")
			w.Header().Set("Retry-After", "60")
			s.render(w, http.StatusTooManyRequests, "login.html", map[string]any{
				"Error": "Too many attempts, try again shortly",
			})
			return
		}
		if err := r.ParseForm(); err != nil {
			s.render(w, http.StatusBadRequest, "login.html", map[string]any{
				"Error": "Invalid form data",
			})
			return
		}
		token, err := s.accounts.Authenticate(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
		if err != nil {
			s.audit(r, "login", "fail")
			s.render(w, http.StatusUnauthorized, "login.html", map[string]any{
				"Error": account.ErrInvalidCredentials.Error(),
			})
			return
		}
		s.audit(r, "login", "success")
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.sessionTTL.Seconds()),
		})
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	default:
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := s.accounts.Logout(cookie.Value); err != nil {
			slog.Warn("logout failed", "err", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/admin-login", http.StatusSeeOther)
}

// admin dashboard

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.catalog.Refresh(r.Context()); err != nil {
		s.renderError(w, http.StatusBadGateway, "Unable to load")
		return
	}
	services := s.catalog.Services()
	views := make([]serviceView, 0, len(services))
	for _, svc := range services {
		view, err := s.serviceViewFor(r, svc)
		if err != nil {
			s.renderError(w, http.StatusBadGateway, "Unable to load")
			return
		}
		views = append(views, view)
	}
	s.render(w, http.StatusOK, "admin.html", map[string]any{
		"Services": views,
		"Flash":    s.readFlash(w, r),
	})
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if !s.requirePost(w, r) {
		return
	}
	_, err := s.catalog.AddService(r.Context(), r.PostFormValue("name"))
	switch {
	case err == nil, errors.Is(err, catalog.ErrValidationSkipped):
		// empty input is a silent no-op, not an error
	default:
		s.setFlash(w, msgSaveFailed)
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if !s.requirePost(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/admin/services/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		s.renderError(w, http.StatusNotFound, "Page not found")
		return
	}
	id := parts[0]
	var err error
	switch strings.Join(parts[1:], "/") {
	case "rename":
		err = s.catalog.RenameService(r.Context(), id, r.PostFormValue("name"))
	case "delete":
		err = s.catalog.DeleteService(r.Context(), id)
	case "sub-services":
		err = s.catalog.AddSubService(r.Context(), id, r.PostFormValue("name"))
	case "sub-services/remove":
		err = s.catalog.RemoveSubService(r.Context(), id, r.PostFormValue("name"))
	default:
		s.renderError(w, http.StatusNotFound, "Page not found")
		return
	}
	if err != nil && !errors.Is(err, catalog.ErrValidationSkipped) {
		s.setFlash(w, msgSaveFailed)
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// file handlers

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.requirePostMultipart(w, r) {
		return
	}
	serviceID := r.FormValue("serviceId")
	subService := r.FormValue("subService")
	purchaseLink := r.FormValue("purchaseLink")

	file, header, err := r.FormFile("file")
	if err != nil {
		s.setFlash(w, catalog.StatusNoFileSelected)
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	defer file.Close()

	logger := util.LoggerFromContext(r.Context())
	logger.Info("file_upload",
		"status", catalog.StatusUploading,
		"service_id", serviceID,
		"sub_service", subService,
		"filename", header.Filename,
		"size", header.Size,
		"user_id", user.ID,
	)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.catalog.AttachFile(r.Context(), serviceID, subService, file, header.Filename, contentType, header.Size, purchaseLink)
	if err != nil {
		logger.Warn("file_upload", "status", "failed", "err", err)
	}
	s.setFlash(w, catalog.UploadStatus(err))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if !s.requirePost(w, r) {
		return
	}
	err := s.catalog.DetachFile(r.Context(), r.PostFormValue("serviceId"), r.PostFormValue("subService"))
	s.setFlash(w, catalog.DeleteStatus(err))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleSetPurchaseLink(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if !s.requirePost(w, r) {
		return
	}
	err := s.catalog.SetPurchaseLink(r.Context(),
		r.PostFormValue("serviceId"), r.PostFormValue("subService"), r.PostFormValue("purchaseLink"))
	switch {
	case err == nil:
		s.setFlash(w, catalog.StatusLinkSaved)
	case errors.Is(err, catalog.ErrNotFound):
		s.setFlash(w, "Upload a file before setting a purchase link")
	default:
		s.setFlash(w, msgSaveFailed)
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// view models

type subView struct {
	Name string
	Key  string
	File *domain.FileRecord
}

type serviceView struct {
	Service domain.Service
	Subs    []subView
}

func (s *Server) serviceView(r *http.Request, id string) (serviceView, error) {
	svc, err := s.catalog.LoadService(r.Context(), id)
	if err != nil {
		return serviceView{}, err
	}
	return s.serviceViewFor(r, svc)
}

func (s *Server) serviceViewFor(r *http.Request, svc domain.Service) (serviceView, error) {
	files, err := s.catalog.LoadFilesForService(r.Context(), svc.ID)
	if err != nil {
		return serviceView{}, err
	}
	subs := make([]subView, 0, len(svc.SubServices))
	for _, name := range svc.SubServices {
		key := domain.FileKey{ServiceID: svc.ID, SubService: name}
		view := subView{Name: name, Key: key.String()}
		if rec, ok := files[key]; ok {
			record := rec
			view.File = &record
		}
		subs = append(subs, view)
	}
	return serviceView{Service: svc, Subs: subs}, nil
}

// helpers

func (s *Server) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Invalid form data")
		return false
	}
	return true
}

func (s *Server) requirePostMultipart(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		s.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.renderError(w, http.StatusBadRequest, "Invalid form data")
		return false
	}
	return true
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("render template", "template", name, "err", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	s.render(w, status, "error.html", map[string]any{"Message": message})
}

// flash carries a one-shot status string across the post/redirect/get cycle.
// The value is base64-encoded to stay cookie-safe.

func (s *Server) setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(message)),
		Path:     "/admin",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
}

func (s *Server) readFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/admin", MaxAge: -1})
	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
