package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arena-relay/internal/config"
	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields this service reads from platform-issued tokens.
// Older tokens carry the id only in "sub".
type Claims struct {
	UserID int `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a validated caller. It stops being valid at ExpiresAt.
type Identity struct {
	UserID    int
	ExpiresAt time.Time
}

type ProfileSource interface {
	Profile(ctx context.Context, userID int) (*models.Profile, error)
	IsBanned(ctx context.Context, userID int) (bool, error)
}

type Service struct {
	profiles ProfileSource
	secret   []byte
	parser   *jwt.Parser
}

func NewService(profiles ProfileSource, cfg *config.Config) *Service {
	return &Service{
		profiles: profiles,
		secret:   cfg.JWT.Secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// ValidateToken checks the signature and expiry and extracts the identity.
func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperror.WithCause(apperror.ErrInvalidToken, err)
	}

	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		if id, convErr := strconv.Atoi(claims.Subject); convErr == nil {
			userID = id
		}
	}
	if userID <= 0 {
		return Identity{}, apperror.Unauthenticated("token carries no user id")
	}

	id := Identity{UserID: userID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Resolve validates the bearer token, loads the caller's profile and rejects
// banned accounts.
func (s *Service) Resolve(ctx context.Context, tokenString string) (Identity, *models.Profile, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, nil, apperror.ErrMissingToken
	}

	id, err := s.ValidateToken(tokenString)
	if err != nil {
		return Identity{}, nil, err
	}

	profile, err := s.profiles.Profile(ctx, id.UserID)
	if apperror.KindOf(err) == apperror.KindNotFound {
		return Identity{}, nil, apperror.Unauthenticated("unknown user")
	}
	if err != nil {
		return Identity{}, nil, fmt.Errorf("failed to resolve user %d: %w", id.UserID, err)
	}

	banned, err := s.profiles.IsBanned(ctx, id.UserID)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("failed to check ban for user %d: %w", id.UserID, err)
	}
	if banned {
		return Identity{}, nil, apperror.ErrBanned
	}

	return id, profile, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must be of the form 'Bearer <token>'")
	}
	return strings.TrimSpace(token), nil
}
