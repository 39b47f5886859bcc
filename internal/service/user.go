// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services take repository interfaces, never a concrete *sqldb.DB, so tests
// run them against in-memory fakes. Every failure a client can fix comes back
// as an *apperror.AppError; anything else is an internal error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

const (
	msgEmailTaken      = "user with this email already exists."
	msgBadCredentials  = "Unable to authenticate with provided credentials."
	msgEmailRequired   = "Users must have an email address."
	msgPasswordTooLong = "Ensure this field has no more than 72 bytes."
	nonFieldErrorsName = "non_field_errors"
)

// RegisterInput is the public sign-up payload.
type RegisterInput struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=5,max=72"`
	Name     string `json:"name"     validate:"required,max=255"`
}

// CredentialsInput is the token request payload.
type CredentialsInput struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateMeInput carries the fields a user may change on their own account.
// Nil means "leave unchanged".
type UpdateMeInput struct {
	Email    *string `json:"email"    validate:"omitnil,email,max=255"`
	Name     *string `json:"name"     validate:"omitnil,min=1,max=255"`
	Password *string `json:"password" validate:"omitnil,min=5,max=72"`
}

// NewUser describes an account created by the manager operations.
type NewUser struct {
	Email       string
	Password    string // empty leaves the account without a usable password
	Name        string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
}

// UserService handles accounts and token issuance.
//
// DEPENDENCIES (injected via NewUserService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue API tokens
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// CreateUser is the low-level manager operation: it normalizes the email,
// hashes the password and stores the account. An empty email is rejected.
// No other validation happens here; callers validate their own payloads.
func (s *UserService) CreateUser(ctx context.Context, nu NewUser) (*model.User, error) {
	email := model.NormalizeEmail(nu.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", msgEmailRequired)
	}

	user := &model.User{
		Email:       email,
		Name:        nu.Name,
		IsActive:    nu.IsActive,
		IsStaff:     nu.IsStaff || nu.IsSuperuser,
		IsSuperuser: nu.IsSuperuser,
	}
	if nu.Password != "" {
		hash, err := s.hashPassword(nu.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", msgEmailTaken)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created",
		slog.Int64("user_id", user.ID),
		slog.Bool("staff", user.IsStaff),
		slog.Bool("superuser", user.IsSuperuser),
	)
	return user, nil
}

// hashPassword hashes a plaintext password. bcrypt counts bytes, not
// characters, so a password that passed the length check can still be too
// long; that case is reported as a field error.
func (s *UserService) hashPassword(plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password", msgPasswordTooLong)
		}
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// CreateSuperuser creates an active account with the staff and superuser flags.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password, name string) (*model.User, error) {
	if password == "" {
		return nil, apperror.ValidationFailed("password", "This field is required.")
	}
	return s.CreateUser(ctx, NewUser{
		Email:       email,
		Password:    password,
		Name:        name,
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
	})
}

// Register validates a public sign-up and creates an active regular account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	fe := fieldErrors{}
	validateStruct(&in, fe)
	if err := fe.err(); err != nil {
		return nil, err
	}

	// Checked up front so the message matches the unique-constraint path.
	if _, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(in.Email)); err == nil {
		return nil, apperror.ValidationFailed("email", msgEmailTaken)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	return s.CreateUser(ctx, NewUser{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		IsActive: true,
	})
}

// IssueToken checks email and password and returns a new API token. Every
// credential failure gives the same message, so callers cannot tell an
// unknown email from a wrong password.
func (s *UserService) IssueToken(ctx context.Context, in CredentialsInput) (string, error) {
	fe := fieldErrors{}
	validateStruct(&in, fe)
	if err := fe.err(); err != nil {
		return "", err
	}

	user, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.ValidationFailed(nonFieldErrorsName, msgBadCredentials)
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password check failed",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return "", apperror.ValidationFailed(nonFieldErrorsName, msgBadCredentials)
	}
	if !user.IsActive {
		return "", apperror.ValidationFailed(nonFieldErrorsName, msgBadCredentials)
	}

	return s.issue(user)
}

func (s *UserService) issue(user *model.User) (string, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("generating token for user %d: %w", user.ID, err)
	}
	s.logger.Info("token issued", slog.Int64("user_id", user.ID))
	return token, nil
}

// UpdateMe applies a partial update to the caller's own account.
func (s *UserService) UpdateMe(ctx context.Context, user *model.User, in UpdateMeInput) (*model.User, error) {
	fe := fieldErrors{}
	validateStruct(&in, fe)
	if err := fe.err(); err != nil {
		return nil, err
	}

	updated := *user
	if in.Email != nil {
		updated.Email = model.NormalizeEmail(*in.Email)
	}
	if in.Name != nil {
		updated.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", msgEmailTaken)
		}
		return nil, fmt.Errorf("updating user %d: %w", user.ID, err)
	}

	s.logger.Info("user updated own account",
		slog.Int64("user_id", updated.ID),
		slog.Bool("password_changed", in.Password != nil),
	)
	return &updated, nil
}

// LoginGitHub signs in the owner of a verified GitHub email. A first sign-in
// creates an account without a usable password.
func (s *UserService) LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (string, *model.User, error) {
	if ghUser == nil || strings.TrimSpace(ghUser.Email) == "" {
		return "", nil, apperror.Unauthorized("GitHub account has no verified email")
	}

	email := model.NormalizeEmail(ghUser.Email)
	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.CreateUser(ctx, NewUser{Email: email, Name: ghUser.DisplayName(), IsActive: true})
		if err != nil {
			return "", nil, err
		}
	case err != nil:
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	if !user.IsActive {
		return "", nil, apperror.Unauthorized("User inactive or deleted.")
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("user_id", user.ID),
		slog.String("login", ghUser.Login),
	)

	token, err := s.issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
