package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"beauty/cmd/identity"
	"beauty/cmd/internal/auth/credential"
	"beauty/cmd/internal/auth/mfa"
	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/auth/session"
	"beauty/cmd/internal/auth/smsotp"
	"beauty/cmd/internal/metrics"
)

// Handler wires the HTTP auth surface to the credential, MFA, OTP, and
// session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts identity.Store
	verifier *credential.Verifier
	sessions *session.Service
	mfa      *mfa.Service
	otp      *smsotp.Service
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics

	// pool is used for audit writes only; nil disables auditing (dev mode).
	pool *pgxpool.Pool

	captcha CaptchaVerifier

	// unlimited and unlimitedOTP mirror verifier and otp with throttling
	// disabled, serving bypass-header traffic outside production.
	unlimited    *credential.Verifier
	unlimitedOTP *smsotp.Service
}

// Deps bundles the handler's service dependencies.
type Deps struct {
	Accounts identity.Store
	Verifier *credential.Verifier
	Sessions *session.Service
	MFA      *mfa.Service
	OTP      *smsotp.Service
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Pool     *pgxpool.Pool
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithCaptchaVerifier overrides the default no-op captcha verifier.
func WithCaptchaVerifier(verifier CaptchaVerifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || verifier == nil {
			return
		}
		h.captcha = verifier
	}
}

// WithBypassVerifier installs the verifier used for X-RateLimit-Bypass
// traffic. Without one the bypass header is ignored.
func WithBypassVerifier(v *credential.Verifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || v == nil {
			return
		}
		h.unlimited = v
	}
}

// WithBypassOTP installs the SMS OTP service used for bypass traffic.
func WithBypassOTP(s *smsotp.Service) HandlerOption {
	return func(h *Handler) {
		if h == nil || s == nil {
			return
		}
		h.unlimitedOTP = s
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: deps.Accounts,
		verifier: deps.Verifier,
		sessions: deps.Sessions,
		mfa:      deps.MFA,
		otp:      deps.OTP,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		pool:     deps.Pool,
		captcha:  NoopCaptchaVerifier{},
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/login/mfa", h.handleLoginMFA)
	mux.HandleFunc("/api/auth/otp/request", h.handleOTPRequest)
	mux.HandleFunc("/api/auth/otp/verify", h.handleOTPVerify)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/auth/devices", h.handleDevices)
	mux.HandleFunc("/api/auth/devices/", h.handleDeviceByID)
	mux.HandleFunc("/api/auth/mfa/setup", h.handleMFASetup)
	mux.HandleFunc("/api/auth/mfa/enable", h.handleMFAEnable)
}

// SessionService exposes the session service for the realtime gateway.
func (h *Handler) SessionService() *session.Service {
	if h == nil {
		return nil
	}
	return h.sessions
}

// authContext describes how the current request authenticated.
type authContext struct {
	Claims     session.AccessClaims
	FromCookie bool
}

// requireAuth resolves the caller from the Authorization header or the
// access cookie. Cookie-authenticated mutations additionally require the
// CSRF double submit, checked by the individual handlers.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (authContext, bool) {
	token := bearerToken(r)
	fromCookie := false
	if token == "" {
		if v, ok := accessTokenFromCookie(r); ok {
			token = v
			fromCookie = true
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return authContext{}, false
	}

	claims, err := h.sessions.ValidateAccessToken(r.Context(), token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return authContext{}, false
	}
	return authContext{Claims: claims, FromCookie: fromCookie}, true
}

// requireCSRF enforces the double submit on cookie-authenticated
// mutations. Header/bearer clients are exempt: no ambient credential, no
// cross-site risk.
func (h *Handler) requireCSRF(w http.ResponseWriter, r *http.Request, auth authContext) bool {
	if !auth.FromCookie {
		return true
	}
	if !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return false
	}
	return true
}

// pickVerifier honors the rate-limit bypass header for test traffic.
func (h *Handler) pickVerifier(r *http.Request) *credential.Verifier {
	if h.bypassRequested(r) && h.unlimited != nil {
		return h.unlimited
	}
	return h.verifier
}

func (h *Handler) bypassRequested(r *http.Request) bool {
	if h.cfg.IsProduction() || !h.cfg.RateLimitBypassEnabled {
		return false
	}
	return strings.TrimSpace(r.Header.Get(RateLimitBypassHeader)) != ""
}

func (h *Handler) requestMeta(r *http.Request, deviceName string) session.RequestMeta {
	return session.RequestMeta{
		Name:       strings.TrimSpace(deviceName),
		UserAgent:  strings.TrimSpace(r.UserAgent()),
		IP:         clientIP(r, h.cfg.TrustProxy),
		ClientHint: strings.TrimSpace(r.Header.Get("X-Device-ID")),
		Language:   strings.TrimSpace(r.Header.Get("Accept-Language")),
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       strDeref(u.Email),
		Phone:       strDeref(u.Phone),
		DisplayName: strDeref(u.DisplayName),
		Role:        string(u.Role),
		MFAEnabled:  u.MFAEnabled,
		CreatedAt:   u.CreatedAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		DeviceID:         issued.DeviceID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}

func strDeref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
