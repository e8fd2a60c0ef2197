package user

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo      *Repository
	jwtSecret string
	tokenTTL  time.Duration
}

type MyJWTClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
	}
}

func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*LoginResponse, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	username, err := s.generateUsername(ctx, req.FullName)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Username: username,
		FullName: req.FullName,
		Password: string(hashedPwd),
		Bio:      req.Bio,
	}
	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return &LoginResponse{AccessToken: token, User: u}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return &LoginResponse{AccessToken: token, User: u}, nil
}

func (s *Service) issueToken(u *User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "quickchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.ID, claims.Username, nil
}

// generateUsername derives a unique handle from the full name plus a
// numeric suffix, retrying on collision.
func (s *Service) generateUsername(ctx context.Context, fullName string) (string, error) {
	base := strings.ToLower(strings.ReplaceAll(fullName, " ", ""))
	if len(base) > 10 {
		base = base[:10]
	}
	if base == "" {
		base = "user"
	}
	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("%s%04d", base, 1000+rand.Intn(9000))
		taken, err := s.repo.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	// Collision storm; fall back to something globally unique.
	return base + uuid.NewString()[:8], nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

func (s *Service) AddFriend(ctx context.Context, userID, friendID string) error {
	if _, err := s.repo.GetByID(ctx, friendID); err != nil {
		return err
	}
	return s.repo.AddFriend(ctx, userID, friendID)
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return s.repo.RemoveFriend(ctx, userID, friendID)
}

func (s *Service) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	return s.repo.GetFriendIDs(ctx, userID)
}

func (s *Service) Block(ctx context.Context, userID, blockedID string) error {
	if _, err := s.repo.GetByID(ctx, blockedID); err != nil {
		return err
	}
	return s.repo.Block(ctx, userID, blockedID)
}

func (s *Service) Unblock(ctx context.Context, userID, blockedID string) error {
	return s.repo.Unblock(ctx, userID, blockedID)
}

func (s *Service) GetBlocked(ctx context.Context, userID string) ([]string, error) {
	return s.repo.GetBlocked(ctx, userID)
}
