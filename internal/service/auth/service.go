package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-chat-backend/internal/database"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/model"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

type LoginParams struct {
	Email    string
	Password string
}

type LoginResult struct {
	User   model.UserItem
	Role   internaljwt.Role
	Tokens internaljwt.TokenResponse
}

// Service issues the credentials the connection gateway later verifies. It
// is the concrete end of the identity-verifier collaborator; the wider
// account management surface lives elsewhere.
type Service struct {
	repo        Repository
	now         func() time.Time
	issueTokens func(user internaljwt.User, role internaljwt.Role, validUntil int64) (internaljwt.TokenResponse, error)
}

func New(db *database.Database) *Service {
	return &Service{
		repo:        NewDynamoRepository(db),
		now:         time.Now,
		issueTokens: internaljwt.CreateTokenWithRefresh,
	}
}

func NewWithRepository(
	repo Repository,
	now func() time.Time,
	issueTokens func(internaljwt.User, internaljwt.Role, int64) (internaljwt.TokenResponse, error),
) *Service {
	if now == nil {
		now = time.Now
	}
	if issueTokens == nil {
		issueTokens = internaljwt.CreateTokenWithRefresh
	}
	return &Service{
		repo:        repo,
		now:         now,
		issueTokens: issueTokens,
	}
}

func (s *Service) Login(ctx context.Context, params LoginParams) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || params.Password == "" {
		return LoginResult{}, newError(ErrorCodeValidation, "email and password are required", nil)
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", err)
		}
		return LoginResult{}, newError(ErrorCodeInternal, "failed to load user", err)
	}

	if user.Status != model.UserStatusActive {
		return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	if !internaljwt.ValidatePassword(user.PasswordHash, params.Password) {
		return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	role := internaljwt.RoleUser
	if user.Role == model.UserRoleAdmin {
		role = internaljwt.RoleAgent
	}

	tokens, err := s.issueTokens(internaljwt.User{
		Id:    user.UserID,
		Email: user.Email,
		Name:  user.Name,
	}, role, 0)
	if err != nil {
		return LoginResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return LoginResult{
		User:   user,
		Role:   role,
		Tokens: tokens,
	}, nil
}
