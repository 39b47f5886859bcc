package model

import "time"

// AttributeKind names one of the two label collections a recipe links to.
// Tags and ingredients have the same shape and the same ownership rules, so
// the store and services handle both through one type.
type AttributeKind string

const (
	KindTag        AttributeKind = "tag"
	KindIngredient AttributeKind = "ingredient"
)

// Valid reports whether k is a known kind.
func (k AttributeKind) Valid() bool {
	return k == KindTag || k == KindIngredient
}

// Attribute is a user-owned Tag or Ingredient.
//
// Names are not unique in the database. Uniqueness per (user, name) only
// comes from the get-or-create lookup used on recipe writes.
type Attribute struct {
	ID     int64  `json:"id"   db:"id"`
	UserID int64  `json:"-"    db:"user_id"`
	Name   string `json:"name" db:"name"`
}

// Recipe is owned by exactly one user. Tags and Ingredients are shared
// references to the owner's attributes, never owned by the recipe.
type Recipe struct {
	ID          int64       `json:"id"           db:"id"`
	UserID      int64       `json:"-"            db:"user_id"`
	Title       string      `json:"title"        db:"title"`
	Description string      `json:"description"  db:"description"`
	TimeMinutes int         `json:"time_minutes" db:"time_minutes"`
	Price       Price       `json:"price"        db:"price_cents"`
	Link        string      `json:"link"         db:"link"`
	Image       string      `json:"image"        db:"image"` // storage key, empty when no image
	Tags        []Attribute `json:"tags"`
	Ingredients []Attribute `json:"ingredients"`
	CreatedAt   time.Time   `json:"-"            db:"created_at"`
	UpdatedAt   time.Time   `json:"-"            db:"updated_at"`
}

// Attributes returns the recipe's links of the given kind.
func (r *Recipe) Attributes(kind AttributeKind) []Attribute {
	if kind == KindIngredient {
		return r.Ingredients
	}
	return r.Tags
}

// SetAttributes replaces the recipe's links of the given kind.
func (r *Recipe) SetAttributes(kind AttributeKind, attrs []Attribute) {
	if attrs == nil {
		attrs = []Attribute{}
	}
	if kind == KindIngredient {
		r.Ingredients = attrs
		return
	}
	r.Tags = attrs
}
