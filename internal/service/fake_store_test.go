package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store. It keeps just enough of the
// SQL store's behavior (ownership scoping, link replacement, filter rules)
// for the services to be tested without a database.
type fakeStore struct {
	users   map[int64]*model.User
	recipes map[int64]*model.Recipe
	attrs   map[model.AttributeKind]map[int64]*model.Attribute
	links   map[model.AttributeKind]map[int64][]int64 // recipe id → attribute ids
	nextID  int64

	txCount   int
	updateErr error // returned by UpdateRecipe and SetRecipeImage when set

	beforeImageSwap func() // runs at the start of SetRecipeImage
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[int64]*model.User{},
		recipes: map[int64]*model.Recipe{},
		attrs: map[model.AttributeKind]map[int64]*model.Attribute{
			model.KindTag:        {},
			model.KindIngredient: {},
		},
		links: map[model.AttributeKind]map[int64][]int64{
			model.KindTag:        {},
			model.KindIngredient: {},
		},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	f.txCount++
	return fn(f)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	user.ID = f.id()
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) ListUsers(_ context.Context, opts repository.UserListOptions) ([]model.User, error) {
	search := strings.ToLower(opts.Search)
	out := []model.User{}
	for _, u := range f.users {
		if search == "" || strings.Contains(strings.ToLower(u.Email), search) || strings.Contains(strings.ToLower(u.Name), search) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, user *model.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	for _, u := range f.users {
		if u.ID != user.ID && u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	for rid, r := range f.recipes {
		if r.UserID == id {
			delete(f.recipes, rid)
		}
	}
	return nil
}

// --- recipes ---

func (f *fakeStore) CreateRecipe(_ context.Context, recipe *model.Recipe) error {
	recipe.ID = f.id()
	stored := *recipe
	f.recipes[recipe.ID] = &stored
	return nil
}

func (f *fakeStore) load(r model.Recipe) model.Recipe {
	for _, kind := range []model.AttributeKind{model.KindTag, model.KindIngredient} {
		ids := slices.Clone(f.links[kind][r.ID])
		slices.Sort(ids)
		attrs := []model.Attribute{}
		for _, id := range ids {
			attrs = append(attrs, *f.attrs[kind][id])
		}
		r.SetAttributes(kind, attrs)
	}
	return r
}

func (f *fakeStore) GetRecipe(_ context.Context, userID, id int64) (*model.Recipe, error) {
	r, ok := f.recipes[id]
	if !ok || r.UserID != userID {
		return nil, apperror.NotFound("recipe", id)
	}
	loaded := f.load(*r)
	return &loaded, nil
}

func (f *fakeStore) linkedToAny(kind model.AttributeKind, recipeID int64, ids []int64) bool {
	for _, id := range f.links[kind][recipeID] {
		if slices.Contains(ids, id) {
			return true
		}
	}
	return false
}

func (f *fakeStore) ListRecipes(_ context.Context, filter repository.RecipeFilter) ([]model.Recipe, error) {
	out := []model.Recipe{}
	for _, r := range f.recipes {
		if r.UserID != filter.UserID {
			continue
		}
		if len(filter.TagIDs) > 0 && !f.linkedToAny(model.KindTag, r.ID, filter.TagIDs) {
			continue
		}
		if len(filter.IngredientIDs) > 0 && !f.linkedToAny(model.KindIngredient, r.ID, filter.IngredientIDs) {
			continue
		}
		out = append(out, f.load(*r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateRecipe(_ context.Context, recipe *model.Recipe) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	r, ok := f.recipes[recipe.ID]
	if !ok || r.UserID != recipe.UserID {
		return apperror.NotFound("recipe", recipe.ID)
	}
	stored := *recipe
	stored.Tags, stored.Ingredients = nil, nil
	f.recipes[recipe.ID] = &stored
	return nil
}

func (f *fakeStore) SetRecipeImage(_ context.Context, userID, id int64, key string) (string, error) {
	if f.beforeImageSwap != nil {
		f.beforeImageSwap()
	}
	if f.updateErr != nil {
		return "", f.updateErr
	}
	r, ok := f.recipes[id]
	if !ok || r.UserID != userID {
		return "", apperror.NotFound("recipe", id)
	}
	previous := r.Image
	r.Image = key
	return previous, nil
}

func (f *fakeStore) DeleteRecipe(_ context.Context, userID, id int64) error {
	r, ok := f.recipes[id]
	if !ok || r.UserID != userID {
		return apperror.NotFound("recipe", id)
	}
	delete(f.recipes, id)
	delete(f.links[model.KindTag], id)
	delete(f.links[model.KindIngredient], id)
	return nil
}

func (f *fakeStore) SetRecipeAttributes(_ context.Context, kind model.AttributeKind, recipeID int64, ids []int64) error {
	deduped := []int64{}
	for _, id := range ids {
		if !slices.Contains(deduped, id) {
			deduped = append(deduped, id)
		}
	}
	f.links[kind][recipeID] = deduped
	return nil
}

// --- attributes ---

func (f *fakeStore) GetOrCreateAttribute(_ context.Context, kind model.AttributeKind, userID int64, name string) (*model.Attribute, bool, error) {
	var found *model.Attribute
	for _, a := range f.attrs[kind] {
		if a.UserID == userID && a.Name == name && (found == nil || a.ID < found.ID) {
			found = a
		}
	}
	if found != nil {
		copied := *found
		return &copied, false, nil
	}
	a := &model.Attribute{ID: f.id(), UserID: userID, Name: name}
	f.attrs[kind][a.ID] = a
	copied := *a
	return &copied, true, nil
}

func (f *fakeStore) GetAttribute(_ context.Context, kind model.AttributeKind, userID, id int64) (*model.Attribute, error) {
	a, ok := f.attrs[kind][id]
	if !ok || a.UserID != userID {
		return nil, apperror.NotFound(string(kind), id)
	}
	copied := *a
	return &copied, nil
}

func (f *fakeStore) ListAttributes(_ context.Context, filter repository.AttributeFilter) ([]model.Attribute, error) {
	assigned := map[int64]bool{}
	for _, ids := range f.links[filter.Kind] {
		for _, id := range ids {
			assigned[id] = true
		}
	}

	out := []model.Attribute{}
	for _, a := range f.attrs[filter.Kind] {
		if a.UserID != filter.UserID || (filter.AssignedOnly && !assigned[a.ID]) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name > out[j].Name
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeStore) UpdateAttribute(_ context.Context, kind model.AttributeKind, attr *model.Attribute) error {
	a, ok := f.attrs[kind][attr.ID]
	if !ok || a.UserID != attr.UserID {
		return apperror.NotFound(string(kind), attr.ID)
	}
	a.Name = attr.Name
	return nil
}

func (f *fakeStore) DeleteAttribute(_ context.Context, kind model.AttributeKind, userID, id int64) error {
	a, ok := f.attrs[kind][id]
	if !ok || a.UserID != userID {
		return apperror.NotFound(string(kind), id)
	}
	delete(f.attrs[kind], id)
	for rid, ids := range f.links[kind] {
		f.links[kind][rid] = slices.DeleteFunc(ids, func(v int64) bool { return v == id })
	}
	return nil
}

// attributesOf returns every stored attribute of kind owned by userID.
func (f *fakeStore) attributesOf(kind model.AttributeKind, userID int64) []model.Attribute {
	out := []model.Attribute{}
	for _, a := range f.attrs[kind] {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

// fakeImages records saved and deleted keys.
type fakeImages struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func newFakeImages() *fakeImages {
	return &fakeImages{saved: map[string][]byte{}}
}

func (f *fakeImages) Save(_ context.Context, key string, body io.Reader, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.saved[key] = data
	return nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.saved, key)
	return nil
}

func (f *fakeImages) URL(key string) string { return "/media/" + key }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServices struct {
	store  *fakeStore
	images *fakeImages
	users  *UserService
	recipe *RecipeService
	attrs  *AttributeService
	admin  *AdminService
	tokens *auth.TokenService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-32-characters!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum and keeps tests fast.
	passwords := auth.NewPasswordServiceWithCost(4)

	store := newFakeStore()
	images := newFakeImages()
	logger := testLogger()
	users := NewUserService(store, tokens, passwords, logger)

	return &testServices{
		store:  store,
		images: images,
		users:  users,
		recipe: NewRecipeService(store, images, logger),
		attrs:  NewAttributeService(store, logger),
		admin:  NewAdminService(store, users, images, logger),
		tokens: tokens,
	}
}

// createUser stores an active user directly in the fake.
func (ts *testServices) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := ts.users.CreateUser(context.Background(), NewUser{Email: email, Password: "pass123", Name: "Test", IsActive: true})
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", email, err)
	}
	return u
}

// assertFieldError checks that err is a validation error carrying msg for field.
func assertFieldError(t *testing.T, err error, field, msg string) {
	t.Helper()
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want a validation error", err)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %T is not an *AppError", err)
	}
	if !slices.Contains(appErr.Fields[field], msg) {
		t.Errorf("Fields[%q] = %v, want it to contain %q", field, appErr.Fields[field], msg)
	}
}

func ptr[T any](v T) *T { return &v }

// pngReader returns a small valid PNG.
func pngReader(t *testing.T) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return &buf
}
