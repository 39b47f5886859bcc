package repository

import (
	"context"

	"github.com/sakif/recipe-api/internal/model"
)

// RecipeFilter scopes a recipe listing. Within TagIDs (and within
// IngredientIDs) a recipe matches when it links to any listed id; each
// non-empty list is applied as its own filter.
type RecipeFilter struct {
	UserID        int64
	TagIDs        []int64
	IngredientIDs []int64
}

type AttributeFilter struct {
	Kind         model.AttributeKind
	UserID       int64
	AssignedOnly bool // only attributes linked to at least one recipe
}

type UserListOptions struct {
	Search string // case-insensitive substring of email or name
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, opts UserListOptions) ([]model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// RecipeRepository methods are always scoped to the owning user. A recipe
// owned by someone else is reported as not found.
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipe(ctx context.Context, userID, id int64) (*model.Recipe, error)
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]model.Recipe, error)
	UpdateRecipe(ctx context.Context, recipe *model.Recipe) error
	DeleteRecipe(ctx context.Context, userID, id int64) error
	// SetRecipeImage points the recipe at key and returns the key it replaced.
	// Concurrent callers on the same recipe are serialized, so each sees the
	// key the previous one wrote.
	SetRecipeImage(ctx context.Context, userID, id int64, key string) (previous string, err error)
	// SetRecipeAttributes replaces every link of the given kind on the recipe.
	SetRecipeAttributes(ctx context.Context, kind model.AttributeKind, recipeID int64, attributeIDs []int64) error
}

type AttributeRepository interface {
	// GetOrCreateAttribute returns the user's attribute with exactly this name,
	// creating it when none exists. created reports which branch was taken.
	GetOrCreateAttribute(ctx context.Context, kind model.AttributeKind, userID int64, name string) (attr *model.Attribute, created bool, err error)
	GetAttribute(ctx context.Context, kind model.AttributeKind, userID, id int64) (*model.Attribute, error)
	ListAttributes(ctx context.Context, filter AttributeFilter) ([]model.Attribute, error)
	UpdateAttribute(ctx context.Context, kind model.AttributeKind, attr *model.Attribute) error
	DeleteAttribute(ctx context.Context, kind model.AttributeKind, userID, id int64) error
}

// Store is the full persistence surface. InTx runs fn against a Store bound
// to a single transaction; the transaction commits when fn returns nil.
type Store interface {
	UserRepository
	RecipeRepository
	AttributeRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
