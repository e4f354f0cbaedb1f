package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-todo-app/internal/model"
	"go-todo-app/pkg/apierror"
)

const (
	bcryptCost        = 12
	minPasswordLength = 6
	minNameLength     = 2
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UserStore is the slice of the credential store the auth service needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	Create(ctx context.Context, u model.User) error
}

// AuthService implements credential verification, registration, and the
// stateless session token. Tokens carry {sub, email, role} signed with a
// server-held secret; there is no server-side session state and no
// refresh or revocation.
type AuthService struct {
	users     UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration, users UserStore) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}, nil
}

// Login verifies the presented credentials and issues a session.
// Failures are typed: INVALID_FORMAT for malformed input, NOT_FOUND for
// an unknown email, WRONG_PASSWORD for a hash mismatch. The latter two
// stay distinct; the sign-in UI maps them to different messages.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.Session, error) {
	email = strings.TrimSpace(email)

	if !emailPattern.MatchString(email) || len(password) < minPasswordLength {
		return model.Session{}, apierror.New("INVALID_FORMAT", "invalid credentials format", "", http.StatusBadRequest)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Session{}, apierror.New("NOT_FOUND", "no user found with this email", "", http.StatusUnauthorized)
	}
	if err != nil {
		return model.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.Session{}, apierror.New("WRONG_PASSWORD", "incorrect password", "", http.StatusUnauthorized)
	}

	return s.issueSession(user)
}

// Register validates and persists a new identity record. No session is
// issued; the user signs in separately.
func (s *AuthService) Register(ctx context.Context, name, email, password, role string) (model.AuthUser, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	role = strings.ToLower(strings.TrimSpace(role))

	var fields []apierror.Field
	if len(name) < minNameLength {
		fields = append(fields, apierror.Field{Field: "name", Message: "Name must be at least 2 characters"})
	}
	if !emailPattern.MatchString(email) {
		fields = append(fields, apierror.Field{Field: "email", Message: "Invalid email address"})
	}
	if len(password) < minPasswordLength {
		fields = append(fields, apierror.Field{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if !model.ValidRole(role) {
		fields = append(fields, apierror.Field{Field: "role", Message: "Please select a role"})
	}
	if len(fields) > 0 {
		return model.AuthUser{}, apierror.NewValidation("invalid input data", fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return model.AuthUser{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.AuthUser{}, apierror.New("ALREADY_EXISTS", "user already exists", email, http.StatusConflict)
		}
		return model.AuthUser{}, err
	}

	return model.AuthUser{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

// ValidateToken resolves a presented token back into a claim. It fails
// closed: signature mismatch, structural corruption, or expiry all yield
// the same unauthorized error, never a partial claim.
func (s *AuthService) ValidateToken(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.New("UNAUTHORIZED", "invalid token signing method", "", http.StatusUnauthorized)
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierror.New("UNAUTHORIZED", "invalid token", "", http.StatusUnauthorized)
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New("UNAUTHORIZED", "invalid token claims", "", http.StatusUnauthorized)
	}

	claims := &model.AuthClaims{}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" || !model.ValidRole(claims.Role) {
		return nil, apierror.New("UNAUTHORIZED", "invalid token subject", "", http.StatusUnauthorized)
	}

	return claims, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthUser{}, apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
	}
	if err != nil {
		return model.AuthUser{}, err
	}

	return model.AuthUser{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

func (s *AuthService) issueSession(user model.User) (model.Session, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return model.Session{}, err
	}

	return model.Session{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokenTTL.Seconds()),
		User:      model.AuthUser{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role},
	}, nil
}
