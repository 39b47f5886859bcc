package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/storage"
)

// AdminCreateInput is the staff console's create payload.
type AdminCreateInput struct {
	Email       string `json:"email"        validate:"required,email,max=255"`
	Password    string `json:"password"     validate:"omitempty,min=5,max=72"`
	Name        string `json:"name"         validate:"max=255"`
	IsActive    *bool  `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// AdminUpdateInput is a partial update of any account.
type AdminUpdateInput struct {
	Email       *string `json:"email"        validate:"omitnil,email,max=255"`
	Name        *string `json:"name"         validate:"omitnil,max=255"`
	Password    *string `json:"password"     validate:"omitnil,min=5,max=72"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// AdminService backs the staff-only user console. Authorization happens in
// the HTTP layer; every method here assumes a staff caller.
type AdminService struct {
	store  repository.Store
	users  *UserService
	images storage.ImageStore
	logger *slog.Logger
}

func NewAdminService(store repository.Store, users *UserService, images storage.ImageStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		users:  users,
		images: images,
		logger: logger,
	}
}

// ListUsers returns every account ordered by email, optionally narrowed by a
// case-insensitive search on email or name.
func (s *AdminService) ListUsers(ctx context.Context, search string) ([]model.User, error) {
	users, err := s.store.ListUsers(ctx, repository.UserListOptions{Search: search})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (s *AdminService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// CreateUser creates an account with explicit flags. is_active defaults to true.
func (s *AdminService) CreateUser(ctx context.Context, in AdminCreateInput) (*model.User, error) {
	fe := fieldErrors{}
	validateStruct(&in, fe)
	if err := fe.err(); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return s.users.CreateUser(ctx, NewUser{
		Email:       in.Email,
		Password:    in.Password,
		Name:        in.Name,
		IsActive:    active,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
	})
}

// UpdateUser applies the present fields to the account.
func (s *AdminService) UpdateUser(ctx context.Context, id int64, in AdminUpdateInput) (*model.User, error) {
	fe := fieldErrors{}
	validateStruct(&in, fe)
	if err := fe.err(); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		user.Email = model.NormalizeEmail(*in.Email)
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := s.users.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.IsStaff != nil {
		user.IsStaff = *in.IsStaff
	}
	if in.IsSuperuser != nil {
		user.IsSuperuser = *in.IsSuperuser
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", msgEmailTaken)
		}
		return nil, fmt.Errorf("updating user %d: %w", id, err)
	}

	s.logger.Info("user updated by admin",
		slog.Int64("user_id", id),
		slog.Bool("active", user.IsActive),
		slog.Bool("staff", user.IsStaff),
		slog.Bool("superuser", user.IsSuperuser),
	)
	return user, nil
}

// DeleteUser removes the account. Recipes, tags and ingredients go with it
// through the foreign keys; the recipe images are removed afterwards.
func (s *AdminService) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		return err
	}

	recipes, err := s.store.ListRecipes(ctx, repository.RecipeFilter{UserID: id})
	if err != nil {
		return fmt.Errorf("listing recipes of user %d: %w", id, err)
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}

	for _, r := range recipes {
		if r.Image == "" {
			continue
		}
		if err := s.images.Delete(ctx, r.Image); err != nil {
			s.logger.Warn("failed to delete image",
				slog.String("key", r.Image),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("user deleted by admin",
		slog.Int64("user_id", id),
		slog.Int("recipes", len(recipes)),
	)
	return nil
}
