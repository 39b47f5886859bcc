package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/storage"
)

const msgNotImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."

// AttributeInput is one nested {"name": ...} entry of a recipe's tags or
// ingredients list.
type AttributeInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// RecipeInput is the write payload for recipes. Every field is a pointer so
// a PATCH can tell "absent" from "zero". An absent tags or ingredients list
// leaves the links untouched; an empty one clears them.
type RecipeInput struct {
	Title       *string           `json:"title"        validate:"omitnil,min=1,max=255"`
	Description *string           `json:"description"`
	TimeMinutes *int              `json:"time_minutes" validate:"omitnil,gte=0"`
	Price       *model.Price      `json:"price"`
	Link        *string           `json:"link"         validate:"omitnil,max=255"`
	Tags        *[]AttributeInput `json:"tags"         validate:"omitnil,dive"`
	Ingredients *[]AttributeInput `json:"ingredients"  validate:"omitnil,dive"`
}

// validate checks the payload. full marks a create or PUT, where title,
// time_minutes and price must be present.
func (in *RecipeInput) validate(full bool) error {
	fe := fieldErrors{}
	if full {
		if in.Title == nil {
			fe.add("title", "This field is required.")
		}
		if in.TimeMinutes == nil {
			fe.add("time_minutes", "This field is required.")
		}
		if in.Price == nil {
			fe.add("price", "This field is required.")
		}
	}
	validateStruct(in, fe)
	return fe.err()
}

// apply copies the present scalar fields onto r.
func (in *RecipeInput) apply(r *model.Recipe) {
	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.TimeMinutes != nil {
		r.TimeMinutes = *in.TimeMinutes
	}
	if in.Price != nil {
		r.Price = *in.Price
	}
	if in.Link != nil {
		r.Link = *in.Link
	}
}

func (in *RecipeInput) attributes(kind model.AttributeKind) *[]AttributeInput {
	if kind == model.KindIngredient {
		return in.Ingredients
	}
	return in.Tags
}

// RecipeService owns recipe writes, including the reconciliation of nested
// tag and ingredient names into the owner's attribute records.
type RecipeService struct {
	store  repository.Store
	images storage.ImageStore
	logger *slog.Logger
}

func NewRecipeService(store repository.Store, images storage.ImageStore, logger *slog.Logger) *RecipeService {
	return &RecipeService{
		store:  store,
		images: images,
		logger: logger,
	}
}

// List returns the user's recipes, newest first. A recipe matches tagIDs when
// it links to any of them, and likewise for ingredientIDs; an empty list does
// not filter.
func (s *RecipeService) List(ctx context.Context, userID int64, tagIDs, ingredientIDs []int64) ([]model.Recipe, error) {
	recipes, err := s.store.ListRecipes(ctx, repository.RecipeFilter{
		UserID:        userID,
		TagIDs:        tagIDs,
		IngredientIDs: ingredientIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeService) Get(ctx context.Context, userID, id int64) (*model.Recipe, error) {
	return s.store.GetRecipe(ctx, userID, id)
}

// Create stores a recipe for userID together with its tags and ingredients.
// Everything happens in one transaction.
func (s *RecipeService) Create(ctx context.Context, userID int64, in RecipeInput) (*model.Recipe, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}

	var created *model.Recipe
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		recipe := &model.Recipe{UserID: userID}
		in.apply(recipe)
		if err := tx.CreateRecipe(ctx, recipe); err != nil {
			return fmt.Errorf("creating recipe: %w", err)
		}
		if err := s.reconcile(ctx, tx, userID, recipe.ID, &in); err != nil {
			return err
		}

		var err error
		created, err = tx.GetRecipe(ctx, userID, recipe.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("recipe created",
		slog.Int64("recipe_id", created.ID),
		slog.Int64("user_id", userID),
		slog.Int("tags", len(created.Tags)),
		slog.Int("ingredients", len(created.Ingredients)),
	)
	return created, nil
}

// Update applies a PATCH (full=false) or PUT (full=true) to one of the
// user's recipes. Another user's recipe is reported as not found.
func (s *RecipeService) Update(ctx context.Context, userID, id int64, in RecipeInput, full bool) (*model.Recipe, error) {
	if err := in.validate(full); err != nil {
		return nil, err
	}

	var updated *model.Recipe
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		recipe, err := tx.GetRecipe(ctx, userID, id)
		if err != nil {
			return err
		}
		in.apply(recipe)
		if err := tx.UpdateRecipe(ctx, recipe); err != nil {
			return fmt.Errorf("updating recipe %d: %w", id, err)
		}
		if err := s.reconcile(ctx, tx, userID, id, &in); err != nil {
			return err
		}

		updated, err = tx.GetRecipe(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("recipe updated",
		slog.Int64("recipe_id", id),
		slog.Int64("user_id", userID),
		slog.Bool("full", full),
	)
	return updated, nil
}

// reconcile resolves each present nested list to the owner's attributes by
// exact name, creating the missing ones, and replaces the recipe's links.
func (s *RecipeService) reconcile(ctx context.Context, tx repository.Store, userID, recipeID int64, in *RecipeInput) error {
	for _, kind := range []model.AttributeKind{model.KindTag, model.KindIngredient} {
		items := in.attributes(kind)
		if items == nil {
			continue
		}

		ids := make([]int64, 0, len(*items))
		for _, item := range *items {
			attr, created, err := tx.GetOrCreateAttribute(ctx, kind, userID, item.Name)
			if err != nil {
				return fmt.Errorf("resolving %s %q: %w", kind, item.Name, err)
			}
			if created {
				s.logger.Debug("attribute created",
					slog.String("kind", string(kind)),
					slog.Int64("id", attr.ID),
					slog.Int64("user_id", userID),
				)
			}
			ids = append(ids, attr.ID)
		}

		if err := tx.SetRecipeAttributes(ctx, kind, recipeID, ids); err != nil {
			return fmt.Errorf("linking %ss to recipe %d: %w", kind, recipeID, err)
		}
	}
	return nil
}

// Delete removes the recipe and then its image. Tags and ingredients stay.
func (s *RecipeService) Delete(ctx context.Context, userID, id int64) error {
	recipe, err := s.store.GetRecipe(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRecipe(ctx, userID, id); err != nil {
		return fmt.Errorf("deleting recipe %d: %w", id, err)
	}

	if recipe.Image != "" {
		s.deleteImage(ctx, recipe.Image)
	}
	s.logger.Info("recipe deleted", slog.Int64("recipe_id", id), slog.Int64("user_id", userID))
	return nil
}

// UploadImage validates body as an image, stores it under a fresh key and
// points the recipe at it. The previous image, if any, is removed afterwards.
func (s *RecipeService) UploadImage(ctx context.Context, userID, id int64, filename string, body io.Reader) (*model.Recipe, error) {
	recipe, err := s.store.GetRecipe(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	img, err := storage.ReadImage(body)
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) {
			return nil, apperror.ValidationFailed("image", msgNotImage)
		}
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	key := storage.RecipeImageKey(filename, img.Format)
	if err := s.images.Save(ctx, key, img.Reader(), img.ContentType); err != nil {
		return nil, fmt.Errorf("saving image for recipe %d: %w", id, err)
	}

	// The swap and the re-read share a transaction; the superseded object
	// is only removed once the new key is committed.
	var previous string
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		if previous, err = tx.SetRecipeImage(ctx, userID, id, key); err != nil {
			return err
		}
		recipe, err = tx.GetRecipe(ctx, userID, id)
		return err
	})
	if err != nil {
		s.deleteImage(ctx, key)
		return nil, fmt.Errorf("recording image for recipe %d: %w", id, err)
	}
	if previous != "" && previous != key {
		s.deleteImage(ctx, previous)
	}

	s.logger.Info("recipe image uploaded",
		slog.Int64("recipe_id", id),
		slog.String("key", key),
		slog.String("format", img.Format),
		slog.Int("bytes", len(img.Data)),
	)
	return recipe, nil
}

// ImageURL turns a stored key into a client URL. Empty keys stay empty.
func (s *RecipeService) ImageURL(key string) string {
	if key == "" {
		return ""
	}
	return s.images.URL(key)
}

// deleteImage is best effort: the row is already gone or updated, so a
// leftover object is logged rather than reported.
func (s *RecipeService) deleteImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
