package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-pushup/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("email and password required")
	ErrInvalidToken       = errors.New("token invalid")
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	AthleteID string `json:"athlete_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     q,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Athlete, TokenResponse, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		return Athlete{}, TokenResponse{}, ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Athlete{}, TokenResponse{}, err
	}

	athlete := Athlete{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO athletes (id, email, display_name, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, athlete.ID, athlete.Email, athlete.DisplayName, athlete.PasswordHash)
	if err := row.Scan(&athlete.CreatedAt); err != nil {
		return Athlete{}, TokenResponse{}, fmt.Errorf("register athlete: %w", err)
	}

	tokens, err := s.IssueToken(athlete.ID)
	if err != nil {
		return Athlete{}, TokenResponse{}, err
	}
	return athlete, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Athlete, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM athletes WHERE email = $1
	`, strings.TrimSpace(strings.ToLower(req.Email)))

	var athlete Athlete
	if err := row.Scan(&athlete.ID, &athlete.Email, &athlete.DisplayName, &athlete.PasswordHash, &athlete.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Athlete{}, TokenResponse{}, ErrInvalidCredentials
		}
		return Athlete{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(athlete.PasswordHash), []byte(req.Password)); err != nil {
		return Athlete{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.IssueToken(athlete.ID)
	if err != nil {
		return Athlete{}, TokenResponse{}, err
	}
	return athlete, tokens, nil
}

func (s *Service) IssueToken(athleteID string) (TokenResponse, error) {
	access, err := s.signToken(athleteID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateToken returns the athlete id carried by a signed access token.
func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := parseClaims(token, s.secret)
	if err != nil {
		return "", err
	}
	return claims.AthleteID, nil
}

func (s *Service) signToken(athleteID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		AthleteID: athleteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   athleteID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func parseClaims(token string, secret []byte) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.AthleteID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims
