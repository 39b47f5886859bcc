package sqldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

func createTestRecipe(t *testing.T, db *DB, userID int64, title string) *model.Recipe {
	t.Helper()
	recipe := &model.Recipe{
		UserID:      userID,
		Title:       title,
		TimeMinutes: 10,
		Price:       model.MustParsePrice("5.00"),
	}
	if err := db.CreateRecipe(context.Background(), recipe); err != nil {
		t.Fatalf("failed to create test recipe: %v", err)
	}
	return recipe
}

func linkAttributes(t *testing.T, db *DB, kind model.AttributeKind, recipe *model.Recipe, names ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		a, _, err := db.GetOrCreateAttribute(ctx, kind, recipe.UserID, name)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	require.NoError(t, db.SetRecipeAttributes(ctx, kind, recipe.ID, ids))
	return ids
}

func titles(recipes []model.Recipe) []string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.Title
	}
	return out
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestCreateRecipe(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")

	recipe := &model.Recipe{
		UserID:      user.ID,
		Title:       "Thai prawn curry",
		Description: "Spicy",
		TimeMinutes: 30,
		Price:       model.MustParsePrice("7.50"),
		Link:        "https://example.com/curry",
	}
	require.NoError(t, db.CreateRecipe(context.Background(), recipe))
	assert.NotZero(t, recipe.ID)
	assert.NotNil(t, recipe.Tags)

	got, err := db.GetRecipe(context.Background(), user.ID, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "Thai prawn curry", got.Title)
	assert.Equal(t, "Spicy", got.Description)
	assert.Equal(t, 30, got.TimeMinutes)
	assert.Equal(t, "7.50", got.Price.String())
	assert.Equal(t, "https://example.com/curry", got.Link)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Ingredients)
}

func TestGetRecipe_OtherUsersRecipeIsNotFound(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	recipe := createTestRecipe(t, db, owner.ID, "Private")

	_, err := db.GetRecipe(context.Background(), other.ID, recipe.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetRecipe_LoadsAttributes(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Curry")
	linkAttributes(t, db, model.KindTag, recipe, "Thai", "Dinner")
	linkAttributes(t, db, model.KindIngredient, recipe, "Prawns")

	got, err := db.GetRecipe(context.Background(), user.ID, recipe.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 2)
	assert.Equal(t, "Thai", got.Tags[0].Name)
	assert.Equal(t, "Dinner", got.Tags[1].Name)
	require.Len(t, got.Ingredients, 1)
	assert.Equal(t, "Prawns", got.Ingredients[0].Name)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListRecipes_NewestFirstAndScopedToUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	other := createTestUser(t, db, "other@example.com")
	createTestRecipe(t, db, user.ID, "First")
	createTestRecipe(t, db, other.ID, "Not mine")
	createTestRecipe(t, db, user.ID, "Second")

	recipes, err := db.ListRecipes(context.Background(), repository.RecipeFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Second", "First"}, titles(recipes))
}

func TestListRecipes_FilterByTags(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	r1 := createTestRecipe(t, db, user.ID, "Thai vegetable curry")
	r2 := createTestRecipe(t, db, user.ID, "Aubergine with tahini")
	createTestRecipe(t, db, user.ID, "Fish and chips")

	vegan := linkAttributes(t, db, model.KindTag, r1, "Vegan")
	vegetarian := linkAttributes(t, db, model.KindTag, r2, "Vegetarian")

	recipes, err := db.ListRecipes(context.Background(), repository.RecipeFilter{
		UserID: user.ID,
		TagIDs: []int64{vegan[0], vegetarian[0]},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Aubergine with tahini", "Thai vegetable curry"}, titles(recipes))
}

func TestListRecipes_MultipleMatchesAppearOnce(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	r := createTestRecipe(t, db, user.ID, "Both tags")
	ids := linkAttributes(t, db, model.KindTag, r, "A", "B")

	recipes, err := db.ListRecipes(context.Background(), repository.RecipeFilter{UserID: user.ID, TagIDs: ids})
	require.NoError(t, err)
	assert.Len(t, recipes, 1)
}

func TestListRecipes_TagsAndIngredientsBothApply(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	r1 := createTestRecipe(t, db, user.ID, "Tagged and salted")
	r2 := createTestRecipe(t, db, user.ID, "Only tagged")
	tag := linkAttributes(t, db, model.KindTag, r1, "Quick")
	require.NoError(t, db.SetRecipeAttributes(context.Background(), model.KindTag, r2.ID, tag))
	salt := linkAttributes(t, db, model.KindIngredient, r1, "Salt")

	recipes, err := db.ListRecipes(context.Background(), repository.RecipeFilter{
		UserID:        user.ID,
		TagIDs:        tag,
		IngredientIDs: salt,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tagged and salted"}, titles(recipes))
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateRecipe(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "chef@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Old")

	recipe.Title = "New"
	recipe.Image = "uploads/recipe/abc.png"
	require.NoError(t, db.UpdateRecipe(context.Background(), recipe))

	got, err := db.GetRecipe(context.Background(), user.ID, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "uploads/recipe/abc.png", got.Image)
}

func TestSetRecipeImage_ReturnsReplacedKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "a@example.com")
	other := createTestUser(t, db, "b@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Soup")

	previous, err := db.SetRecipeImage(ctx, user.ID, recipe.ID, "uploads/recipe/1.png")
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, err = db.SetRecipeImage(ctx, user.ID, recipe.ID, "uploads/recipe/2.png")
	require.NoError(t, err)
	assert.Equal(t, "uploads/recipe/1.png", previous)

	got, err := db.GetRecipe(ctx, user.ID, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/recipe/2.png", got.Image)

	_, err = db.SetRecipeImage(ctx, other.ID, recipe.ID, "uploads/recipe/3.png")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateRecipe_WrongOwner(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	recipe := createTestRecipe(t, db, owner.ID, "Mine")

	recipe.UserID = other.ID
	err := db.UpdateRecipe(context.Background(), recipe)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSetRecipeAttributes_ReplacesAndDeduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "chef@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Curry")
	ids := linkAttributes(t, db, model.KindTag, recipe, "Breakfast")

	lunch, _, err := db.GetOrCreateAttribute(ctx, model.KindTag, user.ID, "Lunch")
	require.NoError(t, err)
	require.NoError(t, db.SetRecipeAttributes(ctx, model.KindTag, recipe.ID, []int64{lunch.ID, lunch.ID}))

	got, err := db.GetRecipe(ctx, user.ID, recipe.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "Lunch", got.Tags[0].Name)

	// The unlinked tag still exists.
	_, err = db.GetAttribute(ctx, model.KindTag, user.ID, ids[0])
	assert.NoError(t, err)
}

func TestDeleteRecipe_KeepsAttributes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "chef@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Doomed")
	ids := linkAttributes(t, db, model.KindIngredient, recipe, "Salt")

	require.NoError(t, db.DeleteRecipe(ctx, user.ID, recipe.ID))

	_, err := db.GetRecipe(ctx, user.ID, recipe.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetAttribute(ctx, model.KindIngredient, user.ID, ids[0])
	assert.NoError(t, err)

	err = db.DeleteRecipe(ctx, user.ID, recipe.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
