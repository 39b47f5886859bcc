package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

var _ repository.AttributeRepository = (*DB)(nil)

// attributeTables names the tables backing one attribute kind.
type attributeTables struct {
	table string // tags / ingredients
	link  string // recipe_tags / recipe_ingredients
	fk    string // link column pointing at table.id
}

var kindTables = map[model.AttributeKind]attributeTables{
	model.KindTag:        {table: "tags", link: "recipe_tags", fk: "tag_id"},
	model.KindIngredient: {table: "ingredients", link: "recipe_ingredients", fk: "ingredient_id"},
}

// tablesFor panics on an unknown kind: table names are interpolated into SQL,
// so only the fixed set above may ever reach a query.
func tablesFor(kind model.AttributeKind) attributeTables {
	t, ok := kindTables[kind]
	if !ok {
		panic(fmt.Sprintf("sqldb: unknown attribute kind %q", kind))
	}
	return t
}

// GetOrCreateAttribute returns the user's attribute named exactly name. When
// several rows share the name (names are not unique) the oldest one wins.
func (db *DB) GetOrCreateAttribute(ctx context.Context, kind model.AttributeKind, userID int64, name string) (*model.Attribute, bool, error) {
	t := tablesFor(kind)

	a := model.Attribute{UserID: userID, Name: name}
	err := db.queryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE user_id = ? AND name = ? ORDER BY id LIMIT 1`, t.table),
		userID, name,
	).Scan(&a.ID)
	if err == nil {
		return &a, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("sqldb: looking up %s %q: %w", kind, name, err)
	}

	a.ID, err = db.insertReturningID(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, name) VALUES (?, ?)`, t.table),
		userID, name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqldb: inserting %s %q: %w", kind, name, err)
	}
	return &a, true, nil
}

func (db *DB) GetAttribute(ctx context.Context, kind model.AttributeKind, userID, id int64) (*model.Attribute, error) {
	t := tablesFor(kind)

	var a model.Attribute
	err := db.queryRow(ctx,
		fmt.Sprintf(`SELECT id, user_id, name FROM %s WHERE id = ? AND user_id = ?`, t.table),
		id, userID,
	).Scan(&a.ID, &a.UserID, &a.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(string(kind), id)
		}
		return nil, fmt.Errorf("sqldb: getting %s %d: %w", kind, id, err)
	}
	return &a, nil
}

// ListAttributes returns the user's attributes ordered by name, descending.
// With AssignedOnly set, only attributes linked to at least one recipe are
// returned, each once.
func (db *DB) ListAttributes(ctx context.Context, filter repository.AttributeFilter) ([]model.Attribute, error) {
	t := tablesFor(filter.Kind)

	query := fmt.Sprintf(`SELECT a.id, a.user_id, a.name FROM %s a WHERE a.user_id = ?`, t.table)
	if filter.AssignedOnly {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM %s l WHERE l.%s = a.id)`, t.link, t.fk)
	}
	query += ` ORDER BY a.name DESC, a.id DESC`

	rows, err := db.query(ctx, query, filter.UserID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing %ss: %w", filter.Kind, err)
	}
	defer rows.Close()

	attrs := []model.Attribute{}
	for rows.Next() {
		var a model.Attribute
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name); err != nil {
			return nil, fmt.Errorf("sqldb: scanning %s: %w", filter.Kind, err)
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating %ss: %w", filter.Kind, err)
	}
	return attrs, nil
}

// UpdateAttribute renames an attribute owned by attr.UserID.
func (db *DB) UpdateAttribute(ctx context.Context, kind model.AttributeKind, attr *model.Attribute) error {
	t := tablesFor(kind)

	result, err := db.exec(ctx,
		fmt.Sprintf(`UPDATE %s SET name = ? WHERE id = ? AND user_id = ?`, t.table),
		attr.Name, attr.ID, attr.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating %s %d: %w", kind, attr.ID, err)
	}
	return checkAffected(result, apperror.NotFound(string(kind), attr.ID))
}

// DeleteAttribute removes the attribute and detaches it from every recipe.
func (db *DB) DeleteAttribute(ctx context.Context, kind model.AttributeKind, userID, id int64) error {
	t := tablesFor(kind)

	result, err := db.exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, t.table),
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: deleting %s %d: %w", kind, id, err)
	}
	return checkAffected(result, apperror.NotFound(string(kind), id))
}
