package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// renameInput is the payload of a tag or ingredient update.
type renameInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// AttributeService serves the tag and ingredient endpoints. Both kinds share
// one implementation; the kind is passed on every call.
type AttributeService struct {
	repo   repository.AttributeRepository
	logger *slog.Logger
}

func NewAttributeService(repo repository.AttributeRepository, logger *slog.Logger) *AttributeService {
	return &AttributeService{repo: repo, logger: logger}
}

// List returns the user's attributes by name, descending. assignedOnly keeps
// those linked to at least one recipe.
func (s *AttributeService) List(ctx context.Context, kind model.AttributeKind, userID int64, assignedOnly bool) ([]model.Attribute, error) {
	attrs, err := s.repo.ListAttributes(ctx, repository.AttributeFilter{
		Kind:         kind,
		UserID:       userID,
		AssignedOnly: assignedOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	return attrs, nil
}

func (s *AttributeService) Get(ctx context.Context, kind model.AttributeKind, userID, id int64) (*model.Attribute, error) {
	return s.repo.GetAttribute(ctx, kind, userID, id)
}

// Rename changes an attribute's name. PATCH and PUT behave the same because
// name is the only writable field.
func (s *AttributeService) Rename(ctx context.Context, kind model.AttributeKind, userID, id int64, name string) (*model.Attribute, error) {
	fe := fieldErrors{}
	validateStruct(&renameInput{Name: name}, fe)
	if err := fe.err(); err != nil {
		return nil, err
	}

	attr, err := s.repo.GetAttribute(ctx, kind, userID, id)
	if err != nil {
		return nil, err
	}
	attr.Name = name
	if err := s.repo.UpdateAttribute(ctx, kind, attr); err != nil {
		return nil, fmt.Errorf("renaming %s %d: %w", kind, id, err)
	}

	s.logger.Info("attribute renamed",
		slog.String("kind", string(kind)),
		slog.Int64("id", id),
		slog.Int64("user_id", userID),
	)
	return attr, nil
}

// Delete removes the attribute and its recipe links. The recipes stay.
func (s *AttributeService) Delete(ctx context.Context, kind model.AttributeKind, userID, id int64) error {
	if err := s.repo.DeleteAttribute(ctx, kind, userID, id); err != nil {
		return err
	}
	s.logger.Info("attribute deleted",
		slog.String("kind", string(kind)),
		slog.Int64("id", id),
		slog.Int64("user_id", userID),
	)
	return nil
}
