package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

var pgErr = errors.New("db error")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func athleteRow(id, email, hash string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "email", "display_name", "password_hash", "created_at"}).
		AddRow(id, email, "Athlete", hash, time.Now())
}

func TestRegisterAndLogin(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO athletes`).
		WithArgs(pgxmock.AnyArg(), "user@example.com", "Athlete", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	svc := NewService("test-secret", mock)
	athlete, tokens, err := svc.Register(context.Background(), RegisterRequest{
		Email:       " User@Example.com ",
		DisplayName: "Athlete",
		Password:    "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if athlete.ID == "" || tokens.AccessToken == "" || tokens.TokenType != "Bearer" {
		t.Fatalf("expected athlete and token")
	}

	mock.ExpectQuery(`SELECT id, email, display_name, password_hash, created_at`).
		WithArgs("user@example.com").
		WillReturnRows(athleteRow(athlete.ID, athlete.Email, athlete.PasswordHash))

	_, loginTokens, err := svc.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	id, err := svc.ValidateToken(loginTokens.AccessToken)
	if err != nil || id != athlete.ID {
		t.Fatalf("validate token: %v %q", err, id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	svc := NewService("secret", nil)
	_, _, err := svc.Register(context.Background(), RegisterRequest{Email: "a@b.c"})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected missing fields, got %v", err)
	}
}

func TestRegisterDBError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO athletes`).
		WithArgs(pgxmock.AnyArg(), "user@example.com", "", pgxmock.AnyArg()).
		WillReturnError(pgErr)

	_, _, err := NewService("secret", mock).Register(context.Background(), RegisterRequest{Email: "user@example.com", Password: "x"})
	if !errors.Is(err, pgErr) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mock := newMock(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs("user@example.com").
		WillReturnRows(athleteRow("athlete-1", "user@example.com", string(hash)))

	_, _, err := NewService("secret", mock).Login(context.Background(), LoginRequest{Email: "user@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, _, err := NewService("secret", mock).Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginDBError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs("user@example.com").
		WillReturnError(pgErr)

	_, _, err := NewService("secret", mock).Login(context.Background(), LoginRequest{Email: "user@example.com", Password: "x"})
	if !errors.Is(err, pgErr) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService("secret", nil)

	if _, err := svc.ValidateToken("garbage"); err == nil {
		t.Fatalf("expected parse error")
	}

	other, _ := NewService("other", nil).signToken("athlete-1", time.Minute)
	if _, err := svc.ValidateToken(other); err == nil {
		t.Fatalf("expected signature error")
	}

	expired, _ := svc.signToken("athlete-1", -time.Minute)
	if _, err := svc.ValidateToken(expired); err == nil {
		t.Fatalf("expected expiry error")
	}

	empty, _ := svc.signToken("", time.Minute)
	if _, err := svc.ValidateToken(empty); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{AthleteID: "athlete-1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewService("secret", nil).ValidateToken(token); err == nil {
		t.Fatalf("expected none algorithm to be rejected")
	}
}

func TestParseClaimsSeam(t *testing.T) {
	orig := parseClaimsFn
	defer func() { parseClaimsFn = orig }()

	parseClaimsFn = func(string, jwt.Claims, jwt.Keyfunc, ...jwt.ParserOption) (*jwt.Token, error) {
		return &jwt.Token{Claims: &Claims{AthleteID: "x"}, Valid: false}, nil
	}
	if _, err := parseClaims("token", []byte("secret")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
