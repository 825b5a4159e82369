package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/db"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/ratelimit"
	"github.com/cloudbsd/admin-panel/internal/security"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, username, password, role string) Principal {
	t.Helper()
	p, err := NewUsers(conn, audit.New(conn)).Create(context.Background(), nil, NewUser{
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return p
}

func auditRows(t *testing.T, conn *gorm.DB, action string) []models.LogEntry {
	t.Helper()
	var rows []models.LogEntry
	if errFind := conn.Where("action = ?", action).Order("id ASC").Find(&rows).Error; errFind != nil {
		t.Fatalf("load audit rows: %v", errFind)
	}
	return rows
}

func TestAuthenticateSuccess(t *testing.T) {
	conn := openTestDB(t)
	admin := createUser(t, conn, "admin", "admin", models.RoleAdmin)
	gw := NewGateway(conn, audit.New(conn), Options{Secret: testSecret})

	session, err := gw.Authenticate(context.Background(), Credentials{Username: "admin", Password: "admin"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if session.User.ID != admin.ID || session.User.Role != models.RoleAdmin || session.User.Language != "en" {
		t.Fatalf("unexpected session user: %+v", session.User)
	}
	claims, errParse := security.ParseUserToken(testSecret, session.Token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.UserID != admin.ID || claims.Role != models.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Fatalf("expected %s token lifetime, got %s", DefaultTokenTTL, ttl)
	}

	rows := auditRows(t, conn, audit.ActionLoginSuccess)
	if len(rows) != 1 || rows[0].UserID == nil || *rows[0].UserID != admin.ID {
		t.Fatalf("expected one LOGIN_SUCCESS row for the admin, got %+v", rows)
	}
}

func TestAuthenticateFailureDoesNotRevealFactor(t *testing.T) {
	conn := openTestDB(t)
	createUser(t, conn, "admin", "admin", models.RoleAdmin)
	gw := NewGateway(conn, audit.New(conn), Options{Secret: testSecret})
	ctx := context.Background()

	_, errWrongPassword := gw.Authenticate(ctx, Credentials{Username: "admin", Password: "wrong"})
	_, errUnknownUser := gw.Authenticate(ctx, Credentials{Username: "ghost", Password: "admin"})
	for _, err := range []error{errWrongPassword, errUnknownUser} {
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("expected Unauthorized, got %v", err)
		}
		if apperr.Message(err) != "Invalid credentials" {
			t.Fatalf("unexpected message %q", apperr.Message(err))
		}
	}

	rows := auditRows(t, conn, audit.ActionLoginFailure)
	if len(rows) != 2 {
		t.Fatalf("expected two LOGIN_FAILURE rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.UserID != nil {
			t.Fatalf("expected failure rows without user id, got %d", *row.UserID)
		}
	}
	if rows[1].Details == nil || *rows[1].Details != "Failed login attempt for user: ghost" {
		t.Fatalf("unexpected details: %v", rows[1].Details)
	}
}

func TestAuthenticateThrottlesPerClient(t *testing.T) {
	conn := openTestDB(t)
	createUser(t, conn, "admin", "admin", models.RoleAdmin)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewManager(
		ratelimit.SettingsConfig{Limit: 2, Window: time.Minute},
		func() time.Time { return now },
		nil,
	)
	gw := NewGateway(conn, audit.New(conn), Options{Secret: testSecret, Limiter: limiter})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := gw.Authenticate(ctx, Credentials{Username: "admin", Password: "bad", ClientIP: "10.1.1.1"}); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("attempt %d: expected Unauthorized, got %v", i, err)
		}
	}
	if _, err := gw.Authenticate(ctx, Credentials{Username: "admin", Password: "admin", ClientIP: "10.1.1.1"}); !errors.Is(err, apperr.ErrTooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if _, err := gw.Authenticate(ctx, Credentials{Username: "admin", Password: "admin", ClientIP: "10.1.1.2"}); err != nil {
		t.Fatalf("expected other client to log in, got %v", err)
	}
	if n := len(auditRows(t, conn, audit.ActionLoginFailure)); n != 2 {
		t.Fatalf("expected throttled attempt to skip audit, got %d failure rows", n)
	}
}

func TestVerify(t *testing.T) {
	conn := openTestDB(t)
	operator := createUser(t, conn, "ops", "secret", models.RoleOperator)
	gw := NewGateway(conn, audit.New(conn), Options{Secret: testSecret})
	ctx := context.Background()

	if _, err := gw.Verify(ctx, ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for missing token, got %v", err)
	}
	if _, err := gw.Verify(ctx, "not-a-jwt"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for malformed token, got %v", err)
	}
	foreign, _ := security.IssueUserToken("other-secret", time.Hour, operator.ID, "ops", models.RoleOperator, "en", time.Now())
	if _, err := gw.Verify(ctx, foreign); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for bad signature, got %v", err)
	}
	expired, _ := security.IssueUserToken(testSecret, time.Minute, operator.ID, "ops", models.RoleOperator, "en", time.Now().Add(-time.Hour))
	if _, err := gw.Verify(ctx, expired); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for expired token, got %v", err)
	}

	valid, _ := security.IssueUserToken(testSecret, time.Hour, operator.ID, "ops", models.RoleAdmin, "en", time.Now())
	p, err := gw.Verify(ctx, valid)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.ID != operator.ID || p.Role != models.RoleOperator {
		t.Fatalf("expected stored role to win over claims, got %+v", p)
	}

	if errDelete := conn.Delete(&models.User{}, operator.ID).Error; errDelete != nil {
		t.Fatalf("delete user: %v", errDelete)
	}
	if _, err := gw.Verify(ctx, valid); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for deleted user, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for header, want := range cases {
		if got := BearerToken(header); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestRolePredicates(t *testing.T) {
	admin := Principal{Role: models.RoleAdmin}
	operator := Principal{Role: models.RoleOperator}
	viewer := Principal{Role: models.RoleViewer}
	if !AdminOnly(admin) || AdminOnly(operator) || AdminOnly(viewer) {
		t.Fatalf("unexpected AdminOnly results")
	}
	if !OperatorOrAdmin(admin) || !OperatorOrAdmin(operator) || OperatorOrAdmin(viewer) {
		t.Fatalf("unexpected OperatorOrAdmin results")
	}
	if !Authenticated(viewer) {
		t.Fatalf("expected Authenticated to admit viewers")
	}
}

func TestTOTPEnrolmentAndLogin(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "alice", "pw", models.RoleViewer)
	gw := NewGateway(conn, audit.New(conn), Options{Secret: testSecret})
	ctx := context.Background()

	if errConfirm := gw.ConfirmTOTP(ctx, user, "123456"); !errors.Is(errConfirm, apperr.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput without pending enrolment, got %v", errConfirm)
	}
	key, err := gw.PrepareTOTP(ctx, user)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if key.Secret == "" || key.URL == "" {
		t.Fatalf("expected secret and url, got %+v", key)
	}
	if errConfirm := gw.ConfirmTOTP(ctx, user, "abcdef"); !errors.Is(errConfirm, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid code to be rejected, got %v", errConfirm)
	}
	code, _ := security.TOTPCode(key.Secret, time.Now())
	if errConfirm := gw.ConfirmTOTP(ctx, user, code); errConfirm != nil {
		t.Fatalf("confirm: %v", errConfirm)
	}
	account, _ := gw.Account(ctx, user)
	if !account.TOTPEnabled {
		t.Fatalf("expected totp to be enabled")
	}
	if _, errPrepare := gw.PrepareTOTP(ctx, user); !errors.Is(errPrepare, apperr.ErrConflict) {
		t.Fatalf("expected Conflict when already enabled, got %v", errPrepare)
	}

	if _, errLogin := gw.Authenticate(ctx, Credentials{Username: "alice", Password: "pw"}); !errors.Is(errLogin, apperr.ErrUnauthorized) {
		t.Fatalf("expected login without code to fail, got %v", errLogin)
	}
	code, _ = security.TOTPCode(key.Secret, time.Now())
	if _, errLogin := gw.Authenticate(ctx, Credentials{Username: "alice", Password: "pw", OTP: code}); errLogin != nil {
		t.Fatalf("expected login with code to succeed, got %v", errLogin)
	}

	if errDisable := gw.DisableTOTP(ctx, user, code); errDisable != nil {
		t.Fatalf("disable: %v", errDisable)
	}
	if _, errLogin := gw.Authenticate(ctx, Credentials{Username: "alice", Password: "pw"}); errLogin != nil {
		t.Fatalf("expected password-only login after disable, got %v", errLogin)
	}
	if n := len(auditRows(t, conn, audit.ActionTOTPEnable)); n != 1 {
		t.Fatalf("expected one TOTP_ENABLE row, got %d", n)
	}
}

func TestGrantsWidenRoles(t *testing.T) {
	conn := openTestDB(t)
	admin := createUser(t, conn, "admin", "admin", models.RoleAdmin)
	viewer := createUser(t, conn, "viewer", "pw", models.RoleViewer)
	grants := NewGrants(conn, audit.New(conn))
	ctx := context.Background()

	allowed, err := grants.AllowResource(ctx, viewer, lifecycle.KindVM, models.GrantRead)
	if err != nil || !allowed {
		t.Fatalf("expected viewer read, got %v err=%v", allowed, err)
	}
	if allowed, _ := grants.AllowResource(ctx, viewer, lifecycle.KindVM, models.GrantWrite); allowed {
		t.Fatalf("expected viewer write to be denied without a grant")
	}

	stored, err := grants.Replace(ctx, admin.Actor(), viewer.ID, []Grant{
		{Resource: "vms", Action: "admin"},
		{Resource: "jails", Action: "Read"},
		{Resource: "vms", Action: "admin"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(stored) != 2 || stored[0] != (Grant{Resource: "jails", Action: "read"}) {
		t.Fatalf("unexpected normalized grants: %+v", stored)
	}
	if allowed, _ := grants.AllowResource(ctx, viewer, lifecycle.KindVM, models.GrantWrite); !allowed {
		t.Fatalf("expected admin grant to cover write")
	}
	if allowed, _ := grants.AllowResource(ctx, viewer, lifecycle.KindJail, models.GrantWrite); allowed {
		t.Fatalf("expected read grant not to cover write")
	}
	if allowed, _ := grants.AllowResource(ctx, viewer, lifecycle.KindContainer, models.GrantWrite); allowed {
		t.Fatalf("expected grants to be per kind")
	}

	listed, err := grants.List(ctx, viewer.ID)
	if err != nil || len(listed) != 2 {
		t.Fatalf("expected two grants, got %+v err=%v", listed, err)
	}
	if _, err := grants.Replace(ctx, nil, viewer.ID, []Grant{{Resource: "nodes", Action: "read"}}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for unknown resource, got %v", err)
	}
	if _, err := grants.Replace(ctx, nil, 999, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound for missing user, got %v", err)
	}
	if len(auditRows(t, conn, audit.ActionUserPermissions)) != 1 {
		t.Fatalf("expected one permissions audit row")
	}
}

func TestUsersCreateAndDelete(t *testing.T) {
	conn := openTestDB(t)
	users := NewUsers(conn, audit.New(conn))
	ctx := context.Background()
	admin := createUser(t, conn, "admin", "admin", models.RoleAdmin)

	bob, err := users.Create(ctx, admin.Actor(), NewUser{Username: "bob", Password: "pw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if bob.Role != models.RoleViewer || bob.Language != "en" {
		t.Fatalf("expected viewer/en defaults, got %+v", bob)
	}
	if _, err := users.Create(ctx, nil, NewUser{Username: "bob", Password: "pw"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict for duplicate username, got %v", err)
	}
	if _, err := users.Create(ctx, nil, NewUser{Username: "eve", Password: "pw", Role: "root"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for unknown role, got %v", err)
	}

	grants := NewGrants(conn, audit.New(conn))
	if _, err := grants.Replace(ctx, nil, bob.ID, []Grant{{Resource: "vms", Action: "write"}}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := users.Delete(ctx, admin, admin.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for self delete, got %v", err)
	}
	other := createUser(t, conn, "root2", "pw", models.RoleAdmin)
	if err := users.Delete(ctx, other, admin.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for seeded admin delete, got %v", err)
	}
	if err := users.Delete(ctx, admin, bob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := users.Delete(ctx, admin, bob.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}
	var remaining int64
	conn.Model(&models.Permission{}).Where("user_id = ?", bob.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected grants to be removed with the user, got %d", remaining)
	}

	list, err := users.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected two users, got %+v err=%v", list, err)
	}
}
