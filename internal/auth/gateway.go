// Package auth verifies credentials, issues and checks session tokens and
// decides what a principal may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/metrics"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/ratelimit"
	"github.com/cloudbsd/admin-panel/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultTokenTTL is the session lifetime when none is configured.
const DefaultTokenTTL = 8 * time.Hour

// Client-facing messages. Login failures never say which factor failed.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgTokenRequired      = "Access token required"
	msgInvalidToken       = "Invalid or expired token"
	msgTooManyAttempts    = "Too many login attempts, try again later"
)

// Options configures a Gateway.
type Options struct {
	Secret  string
	TTL     time.Duration
	Limiter *ratelimit.Manager // nil disables login throttling.
}

// Gateway authenticates users and verifies session tokens.
type Gateway struct {
	db      *gorm.DB
	audit   *audit.Log
	limiter *ratelimit.Manager
	secret  string
	ttl     time.Duration
	nowFn   func() time.Time
}

// NewGateway constructs a Gateway.
func NewGateway(conn *gorm.DB, auditLog *audit.Log, opts Options) *Gateway {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Gateway{
		db:      conn,
		audit:   auditLog,
		limiter: opts.Limiter,
		secret:  opts.Secret,
		ttl:     ttl,
		nowFn:   time.Now,
	}
}

// Credentials is one login attempt.
type Credentials struct {
	Username string
	Password string
	OTP      string
	ClientIP string
}

// Session is the result of a successful login.
type Session struct {
	Token string
	User  Principal
}

// Authenticate checks credentials and issues a session token.
func (g *Gateway) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	if g.limiter != nil {
		res, errLimit := g.limiter.AllowLogin(ctx, creds.ClientIP)
		if errLimit != nil {
			log.WithError(errLimit).Warn("auth: login rate limit check failed")
		} else if !res.Allowed {
			metrics.LoginAttempts.WithLabelValues("throttled").Inc()
			return nil, apperr.TooManyRequests(msgTooManyAttempts)
		}
	}

	username := strings.TrimSpace(creds.Username)
	var user models.User
	errFind := g.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(fmt.Errorf("auth: load user: %w", errFind))
	}
	ok := errFind == nil && security.CheckPassword(user.PasswordHash, creds.Password)
	if ok && user.TOTPSecret != "" {
		ok = security.ValidateTOTP(user.TOTPSecret, creds.OTP, g.nowFn())
	}
	if !ok {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		g.audit.Record(ctx, nil, audit.ActionLoginFailure, "Failed login attempt for user: "+username)
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	token, errToken := security.IssueUserToken(g.secret, g.ttl, user.ID, user.Username, user.Role, user.Language, g.nowFn())
	if errToken != nil {
		return nil, apperr.Internal(fmt.Errorf("auth: issue token: %w", errToken))
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	g.audit.Record(ctx, &user.ID, audit.ActionLoginSuccess, fmt.Sprintf("User %s logged in", user.Username))
	return &Session{Token: token, User: principalFromUser(user)}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// Verify checks token and returns the principal it names. A missing token is
// Unauthorized; a token that fails verification, or whose user is gone, is
// Forbidden. Role and language come from the stored user, not the claims.
func (g *Gateway) Verify(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, apperr.Unauthorized(msgTokenRequired)
	}
	claims, errParse := security.ParseUserToken(g.secret, token)
	if errParse != nil {
		return Principal{}, apperr.Forbidden(msgInvalidToken)
	}
	var user models.User
	errFind := g.db.WithContext(ctx).First(&user, claims.UserID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return Principal{}, apperr.Forbidden(msgInvalidToken)
	}
	if errFind != nil {
		return Principal{}, apperr.Internal(fmt.Errorf("auth: load principal: %w", errFind))
	}
	return principalFromUser(user), nil
}
