package sqldb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// dialect captures what differs between the supported databases.
type dialect struct {
	name       string
	driver     string   // database/sql driver name
	numbered   bool     // $1, $2 placeholders instead of ?
	pragmas    []string // SQLite only: applied by the driver to every new connection
	forUpdate  string   // row-lock suffix for SELECTs that precede an UPDATE
	migrations []string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
}

// rebind rewrites "?" placeholders into the dialect's form. Queries in this
// package never contain a literal question mark, so a plain scan is enough.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dsn appends the dialect's pragmas as modernc "_pragma" parameters, so the
// driver runs them on every connection it opens, including reconnects.
func (d dialect) dsn(dsn string) string {
	if len(d.pragmas) == 0 {
		return dsn
	}
	params := make([]string, 0, len(d.pragmas))
	for _, p := range d.pragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

var sqliteDialect = dialect{
	name:   DriverSQLite,
	driver: "sqlite",
	pragmas: []string{
		// WAL lets readers proceed while a write is in flight.
		"journal_mode(WAL)",
		// Off by default in SQLite; the cascades below depend on it.
		"foreign_keys(1)",
	},
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			email        TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL DEFAULT '',
			password     TEXT NOT NULL DEFAULT '',
			is_active    BOOLEAN NOT NULL DEFAULT 1,
			is_staff     BOOLEAN NOT NULL DEFAULT 0,
			is_superuser BOOLEAN NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS recipes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			time_minutes INTEGER NOT NULL DEFAULT 0,
			price_cents  INTEGER NOT NULL DEFAULT 0,
			link         TEXT NOT NULL DEFAULT '',
			image        TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipes_user_id ON recipes(user_id)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_user_name ON tags(user_id, name)`,
		`CREATE TABLE IF NOT EXISTS ingredients (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingredients_user_name ON ingredients(user_id, name)`,
		`CREATE TABLE IF NOT EXISTS recipe_tags (
			recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (recipe_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipe_tags_tag_id ON recipe_tags(tag_id)`,
		`CREATE TABLE IF NOT EXISTS recipe_ingredients (
			recipe_id     INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			ingredient_id INTEGER NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
			PRIMARY KEY (recipe_id, ingredient_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipe_ingredients_ingredient_id ON recipe_ingredients(ingredient_id)`,
	},
}

var postgresDialect = dialect{
	name:     DriverPostgres,
	driver:   "postgres",
	numbered: true,
	// SQLite serializes writers on its single connection and has no FOR UPDATE.
	forUpdate: " FOR UPDATE",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           BIGSERIAL PRIMARY KEY,
			email        VARCHAR(255) NOT NULL UNIQUE,
			name         VARCHAR(255) NOT NULL DEFAULT '',
			password     VARCHAR(128) NOT NULL DEFAULT '',
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			is_staff     BOOLEAN NOT NULL DEFAULT FALSE,
			is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS recipes (
			id           BIGSERIAL PRIMARY KEY,
			user_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title        VARCHAR(255) NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			time_minutes INTEGER NOT NULL DEFAULT 0,
			price_cents  BIGINT NOT NULL DEFAULT 0,
			link         VARCHAR(255) NOT NULL DEFAULT '',
			image        VARCHAR(255) NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipes_user_id ON recipes(user_id)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id      BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name    VARCHAR(255) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_user_name ON tags(user_id, name)`,
		`CREATE TABLE IF NOT EXISTS ingredients (
			id      BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name    VARCHAR(255) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingredients_user_name ON ingredients(user_id, name)`,
		`CREATE TABLE IF NOT EXISTS recipe_tags (
			recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			tag_id    BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (recipe_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipe_tags_tag_id ON recipe_tags(tag_id)`,
		`CREATE TABLE IF NOT EXISTS recipe_ingredients (
			recipe_id     BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			ingredient_id BIGINT NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
			PRIMARY KEY (recipe_id, ingredient_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipe_ingredients_ingredient_id ON recipe_ingredients(ingredient_id)`,
	},
}

// Migrate creates the schema. Every statement is idempotent, so running it on
// an existing database is a no-op.
//
// TODO: move to versioned migrations once a column needs to change type;
// CREATE ... IF NOT EXISTS cannot alter existing tables.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range db.dialect.migrations {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqldb: migration %d: %w", i+1, err)
		}
	}
	return nil
}
