package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

var _ repository.RecipeRepository = (*DB)(nil)

const recipeColumns = `id, user_id, title, description, time_minutes, price_cents, link, image, created_at, updated_at`

func scanRecipe(s rowScanner) (*model.Recipe, error) {
	var r model.Recipe
	err := s.Scan(
		&r.ID,
		&r.UserID,
		&r.Title,
		&r.Description,
		&r.TimeMinutes,
		&r.Price,
		&r.Link,
		&r.Image,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecipe inserts the recipe row only. Tag and ingredient links are
// written separately with SetRecipeAttributes.
func (db *DB) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	id, err := db.insertReturningID(ctx,
		`INSERT INTO recipes (user_id, title, description, time_minutes, price_cents, link, image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.UserID,
		recipe.Title,
		recipe.Description,
		recipe.TimeMinutes,
		recipe.Price,
		recipe.Link,
		recipe.Image,
		recipe.CreatedAt,
		recipe.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting recipe %q: %w", recipe.Title, err)
	}

	recipe.ID = id
	recipe.SetAttributes(model.KindTag, recipe.Tags)
	recipe.SetAttributes(model.KindIngredient, recipe.Ingredients)
	return nil
}

// GetRecipe returns one of the user's recipes with its tags and ingredients.
func (db *DB) GetRecipe(ctx context.Context, userID, id int64) (*model.Recipe, error) {
	r, err := scanRecipe(db.queryRow(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqldb: getting recipe %d: %w", id, err)
	}

	recipes := []model.Recipe{*r}
	if err := db.loadAttributes(ctx, recipes); err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

// ListRecipes returns the user's recipes, newest first.
//
// FILTER SEMANTICS:
//   - tags=1,2          → recipes linked to tag 1 OR tag 2
//   - ingredients=3     → recipes linked to ingredient 3
//   - both present      → a recipe must satisfy each list
//
// The filters are IN (subquery) rather than JOINs, so a recipe that matches
// several ids still appears once.
func (db *DB) ListRecipes(ctx context.Context, filter repository.RecipeFilter) ([]model.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE user_id = ?`
	args := []any{filter.UserID}

	for _, f := range []struct {
		kind model.AttributeKind
		ids  []int64
	}{
		{model.KindTag, filter.TagIDs},
		{model.KindIngredient, filter.IngredientIDs},
	} {
		if len(f.ids) == 0 {
			continue
		}
		t := tablesFor(f.kind)
		marks, idArgs := placeholders(f.ids)
		query += fmt.Sprintf(` AND id IN (SELECT recipe_id FROM %s WHERE %s IN (%s))`, t.link, t.fk, marks)
		args = append(args, idArgs...)
	}
	query += ` ORDER BY id DESC`

	recipes, err := db.collectRecipes(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := db.loadAttributes(ctx, recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

// collectRecipes drains the result set before returning. With a single
// SQLite connection the rows must be closed before any further query runs.
func (db *DB) collectRecipes(ctx context.Context, query string, args ...any) ([]model.Recipe, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing recipes: %w", err)
	}
	defer rows.Close()

	recipes := []model.Recipe{}
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning recipe: %w", err)
		}
		recipes = append(recipes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating recipes: %w", err)
	}
	return recipes, nil
}

// loadAttributes fills Tags and Ingredients for every recipe with one query
// per kind.
func (db *DB) loadAttributes(ctx context.Context, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}

	ids := make([]int64, len(recipes))
	index := make(map[int64]int, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
		index[recipes[i].ID] = i
	}

	for _, kind := range []model.AttributeKind{model.KindTag, model.KindIngredient} {
		linked, err := db.linkedAttributes(ctx, kind, ids)
		if err != nil {
			return err
		}
		for i := range recipes {
			recipes[i].SetAttributes(kind, linked[recipes[i].ID])
		}
	}
	return nil
}

func (db *DB) linkedAttributes(ctx context.Context, kind model.AttributeKind, recipeIDs []int64) (map[int64][]model.Attribute, error) {
	t := tablesFor(kind)
	marks, args := placeholders(recipeIDs)

	rows, err := db.query(ctx, fmt.Sprintf(
		`SELECT l.recipe_id, a.id, a.user_id, a.name
		 FROM %s l JOIN %s a ON a.id = l.%s
		 WHERE l.recipe_id IN (%s)
		 ORDER BY a.id`,
		t.link, t.table, t.fk, marks), args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: loading %ss: %w", kind, err)
	}
	defer rows.Close()

	linked := make(map[int64][]model.Attribute)
	for rows.Next() {
		var recipeID int64
		var a model.Attribute
		if err := rows.Scan(&recipeID, &a.ID, &a.UserID, &a.Name); err != nil {
			return nil, fmt.Errorf("sqldb: scanning %s: %w", kind, err)
		}
		linked[recipeID] = append(linked[recipeID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating %ss: %w", kind, err)
	}
	return linked, nil
}

// UpdateRecipe writes the scalar columns. Links are untouched.
func (db *DB) UpdateRecipe(ctx context.Context, recipe *model.Recipe) error {
	recipe.UpdatedAt = time.Now().UTC()

	result, err := db.exec(ctx,
		`UPDATE recipes
		 SET title = ?, description = ?, time_minutes = ?, price_cents = ?, link = ?, image = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		recipe.Title,
		recipe.Description,
		recipe.TimeMinutes,
		recipe.Price,
		recipe.Link,
		recipe.Image,
		recipe.UpdatedAt,
		recipe.ID,
		recipe.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating recipe %d: %w", recipe.ID, err)
	}
	return checkAffected(result, apperror.NotFound("recipe", recipe.ID))
}

// SetRecipeImage swaps the image key. The current key is read under a row
// lock in the same transaction as the write.
func (db *DB) SetRecipeImage(ctx context.Context, userID, id int64, key string) (string, error) {
	var previous string
	err := db.InTx(ctx, func(tx repository.Store) error {
		txDB := tx.(*DB)
		err := txDB.queryRow(ctx,
			`SELECT image FROM recipes WHERE id = ? AND user_id = ?`+txDB.dialect.forUpdate, id, userID).
			Scan(&previous)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("recipe", id)
			}
			return fmt.Errorf("sqldb: locking recipe %d: %w", id, err)
		}

		result, err := txDB.exec(ctx,
			`UPDATE recipes SET image = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			key, time.Now().UTC(), id, userID)
		if err != nil {
			return fmt.Errorf("sqldb: setting image of recipe %d: %w", id, err)
		}
		return checkAffected(result, apperror.NotFound("recipe", id))
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// DeleteRecipe removes the recipe and its links. The linked tags and
// ingredients survive.
func (db *DB) DeleteRecipe(ctx context.Context, userID, id int64) error {
	result, err := db.exec(ctx, `DELETE FROM recipes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqldb: deleting recipe %d: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("recipe", id))
}

// SetRecipeAttributes replaces the recipe's links of one kind with ids.
// Duplicate ids are linked once. Call it inside InTx so the delete and the
// inserts land together.
func (db *DB) SetRecipeAttributes(ctx context.Context, kind model.AttributeKind, recipeID int64, attributeIDs []int64) error {
	t := tablesFor(kind)

	if _, err := db.exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE recipe_id = ?`, t.link), recipeID); err != nil {
		return fmt.Errorf("sqldb: clearing %ss of recipe %d: %w", kind, recipeID, err)
	}

	seen := make(map[int64]bool, len(attributeIDs))
	insert := fmt.Sprintf(`INSERT INTO %s (recipe_id, %s) VALUES (?, ?)`, t.link, t.fk)
	for _, id := range attributeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := db.exec(ctx, insert, recipeID, id); err != nil {
			return fmt.Errorf("sqldb: linking %s %d to recipe %d: %w", kind, id, recipeID, err)
		}
	}
	return nil
}
