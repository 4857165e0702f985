package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	pkgAuth "github.com/angelmondragon/bookstore-backend/pkg/auth"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/mailer"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/security"
)

var (
	testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "bookstore-test", ExpirationMinutes: 7 * 24 * 60}
	testPwd = config.PasswordConfig{
		MinLength:        8,
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
		ResetTokenTTL:    10 * time.Minute,
	}
)

type captureMailer struct {
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type fixture struct {
	conn    *gorm.DB
	svc     Service
	mail    *captureMailer
	now     time.Time
	advance func(time.Duration)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := testutil.OpenClient(t)
	conn := client.DB()
	recorder, err := activity.NewService(activity.NewRepository(conn), nil)
	require.NoError(t, err)

	fx := &fixture{conn: conn, mail: &captureMailer{}, now: time.Now().UTC()}
	fx.advance = func(d time.Duration) { fx.now = fx.now.Add(d) }
	svc, err := NewService(ServiceParams{
		Users:          users.NewRepository(conn),
		Tx:             client,
		Activity:       recorder,
		Outbox:         outbox.NewService(outbox.NewRepository(conn), nil),
		Mailer:         fx.mail,
		JWTConfig:      testJWT,
		PasswordConfig: testPwd,
		ClientURL:      "https://shop.example.com/",
		Clock:          func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := users.NewRepository(fx.conn).FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return user
}

func TestRegisterThenLogin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	created, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "Ada@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, enums.RoleUser, created.Role)

	var jobs []models.OutboxEvent
	require.NoError(t, fx.conn.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, enums.EventEmailRequested, jobs[0].EventType)
	assert.Contains(t, string(jobs[0].Payload), `"template":"welcome"`)

	resp, err := fx.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, created.ID, resp.User.ID)
	require.NotNil(t, resp.User.LastLoginAt)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)
	assert.Equal(t, enums.RoleUser, claims.Role)
	assert.WithinDuration(t, fx.now.Add(7*24*time.Hour), resp.ExpiresAt, time.Second)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = fx.svc.Register(ctx, RegisterRequest{Name: "Imposter", Email: "ADA@example.com", Password: "password456"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, fx.conn.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	var jobs int64
	require.NoError(t, fx.conn.Model(&models.OutboxEvent{}).Count(&jobs).Error)
	assert.Equal(t, int64(1), jobs)
}

func TestRegisterValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []RegisterRequest{
		{Name: "Ada", Email: "not-an-email", Password: "password123"},
		{Name: "Ada", Email: "ada@example.com", Password: "short"},
		{Name: " ", Email: "ada@example.com", Password: "password123"},
	}
	for _, req := range cases {
		_, err := fx.svc.Register(ctx, req)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "request %+v", req)
	}
}

func TestLoginFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	user := fx.user(t, "ada@example.com")
	require.NoError(t, users.NewRepository(fx.conn).Updates(ctx, user.ID, map[string]any{"is_active": false}))
	resp, err := fx.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(legacy)
	_, err = users.NewRepository(fx.conn).Create(ctx, users.CreateUserDTO{Name: "Old", Email: "old@example.com", PasswordHash: &hash})
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "old@example.com", Password: "password123"})
	require.NoError(t, err)

	stored := fx.user(t, "old@example.com")
	assert.False(t, security.NeedsRehash(*stored.PasswordHash))
}

type requestKey struct{}

func TestLoginRehashUsesRequestContext(t *testing.T) {
	fx := newFixture(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(legacy)
	_, err = users.NewRepository(fx.conn).Create(context.Background(), users.CreateUserDTO{Name: "Old", Email: "old@example.com", PasswordHash: &hash})
	require.NoError(t, err)

	var updates []context.Context
	require.NoError(t, fx.conn.Callback().Update().Before("gorm:update").Register("test:capture_ctx", func(db *gorm.DB) {
		updates = append(updates, db.Statement.Context)
	}))

	ctx := context.WithValue(context.Background(), requestKey{}, "req-42")
	_, err = fx.svc.Login(ctx, LoginRequest{Email: "old@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	for _, got := range updates {
		assert.Equal(t, "req-42", got.Value(requestKey{}))
	}
}

func TestAdminLogin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = fx.svc.AdminLogin(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	user := fx.user(t, "ada@example.com")
	require.NoError(t, users.NewRepository(fx.conn).Updates(ctx, user.ID, map[string]any{"role": enums.RoleAdmin}))

	_, err = fx.svc.AdminLogin(ctx, LoginRequest{Email: "ada@example.com", Password: "nope-nope"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	resp, err := fx.svc.AdminLogin(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, claims.Role)
}

func TestSocialLoginCreatesPasswordlessAccountOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	avatar := "https://images.example.com/me.png"

	first, err := fx.svc.SocialLogin(ctx, SocialLoginRequest{Email: "reader@example.com", Name: "Reader", Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, avatar, first.User.Avatar)

	second, err := fx.svc.SocialLogin(ctx, SocialLoginRequest{Email: "reader@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	stored := fx.user(t, "reader@example.com")
	assert.False(t, stored.HasPassword())

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "reader@example.com", Password: "anything1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestForgotAndResetPassword(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	err = fx.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, fx.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ada@example.com"}))
	require.Len(t, fx.mail.sent, 1)
	msg := fx.mail.sent[0]
	assert.Equal(t, "Password Reset Request", msg.Subject)
	prefix := "https://shop.example.com/reset-password/"
	idx := strings.Index(msg.Text, prefix)
	require.GreaterOrEqual(t, idx, 0)
	token := strings.Fields(msg.Text[idx+len(prefix):])[0]
	require.Len(t, token, 64)

	err = fx.svc.ResetPassword(ctx, "wrong-token", ResetPasswordRequest{NewPassword: "brandnew123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, fx.svc.ResetPassword(ctx, token, ResetPasswordRequest{NewPassword: "brandnew123"}))
	stored := fx.user(t, "ada@example.com")
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetExpiresAt)

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "brandnew123"})
	require.NoError(t, err)

	// tokens are single use
	err = fx.svc.ResetPassword(ctx, token, ResetPasswordRequest{NewPassword: "another1234"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResetPasswordExpiredTokenLeavesPasswordUnchanged(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, fx.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ada@example.com"}))
	text := fx.mail.sent[0].Text
	token := strings.Fields(text[strings.Index(text, "/reset-password/")+len("/reset-password/"):])[0]

	fx.advance(11 * time.Minute)
	err = fx.svc.ResetPassword(ctx, token, ResetPasswordRequest{NewPassword: "brandnew123"})
	require.Error(t, err)
	assert.Equal(t, "Token is invalid or has expired", pkgerrors.As(err).Message())

	_, err = fx.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
}

func TestForgotPasswordSwallowsMailerFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	fx.mail.err = errors.New("provider down")
	require.NoError(t, fx.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ada@example.com"}))
	assert.NotNil(t, fx.user(t, "ada@example.com").ResetTokenHash)
}
