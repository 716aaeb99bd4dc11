package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procureflow/internal/model"
	"procureflow/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown user, a wrong password or a deactivated account
var ErrInvalidCredentials = errors.New("invalid username or password")

type CreateUserDTO struct {
	Username   string `json:"username" binding:"required,max=255"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Role       string `json:"role" binding:"required,oneof=admin manager staff"`
	Department string `json:"department" binding:"max=100"`
}

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is a User without its password hash
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  string    `json:"created_at"`
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	IssueToken(userID uuid.UUID, role string, ttl time.Duration) (string, error)
}

type UserService interface {
	Create(ctx context.Context, dto CreateUserDTO) (*UserResponse, error)
	Login(ctx context.Context, dto LoginDTO) (*TokenResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	List(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	// SetActive toggles whether the user can log in and receive escalated reviews
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*UserResponse, error)
}

type userService struct {
	users    repository.UserRepository
	tokens   TokenIssuer
	tokenTTL time.Duration
}

func NewUserService(users repository.UserRepository, tokens TokenIssuer, tokenTTL time.Duration) UserService {
	return &userService{users: users, tokens: tokens, tokenTTL: tokenTTL}
}

func toUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *userService) Create(ctx context.Context, dto CreateUserDTO) (*UserResponse, error) {
	dto.Username = strings.TrimSpace(dto.Username)
	if dto.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if dto.Role == model.RoleManager && strings.TrimSpace(dto.Department) == "" {
		return nil, fmt.Errorf("%w: a manager needs a department to review", ErrValidation)
	}

	if _, err := s.users.GetByUsername(ctx, dto.Username); err == nil {
		return nil, fmt.Errorf("%w: username already exists", ErrValidation)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:   dto.Username,
		Email:      dto.Email,
		Password:   string(hashed),
		Role:       dto.Role,
		Department: strings.TrimSpace(dto.Department),
		IsActive:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return toUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, dto LoginDTO) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, dto.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	token, err := s.tokens.IssueToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResponse{Token: token, ExpiresAt: expiresAt.UTC()}, nil
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) List(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *toUserResponse(&users[i]))
	}
	return res, total, nil
}

func (s *userService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*UserResponse, error) {
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
