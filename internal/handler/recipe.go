package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/service"
	"github.com/sakif/recipe-api/internal/storage"
)

// RecipeHandler serves /recipe/recipes. Every operation is scoped to the
// authenticated user; someone else's recipe answers 404.
type RecipeHandler struct {
	recipes *service.RecipeService
	logger  *slog.Logger
}

func NewRecipeHandler(recipes *service.RecipeService, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, logger: logger}
}

// recipeSummary is the list shape.
type recipeSummary struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	TimeMinutes int               `json:"time_minutes"`
	Price       model.Price       `json:"price"`
	Link        string            `json:"link"`
	Tags        []model.Attribute `json:"tags"`
	Ingredients []model.Attribute `json:"ingredients"`
}

// recipeDetail adds the description and the image URL (null without an image).
type recipeDetail struct {
	recipeSummary
	Description string  `json:"description"`
	Image       *string `json:"image"`
}

type imageResponse struct {
	ID    int64   `json:"id"`
	Image *string `json:"image"`
}

func newRecipeSummary(r *model.Recipe) recipeSummary {
	return recipeSummary{
		ID:          r.ID,
		Title:       r.Title,
		TimeMinutes: r.TimeMinutes,
		Price:       r.Price,
		Link:        r.Link,
		Tags:        nonNil(r.Tags),
		Ingredients: nonNil(r.Ingredients),
	}
}

func (h *RecipeHandler) detail(r *model.Recipe) recipeDetail {
	return recipeDetail{
		recipeSummary: newRecipeSummary(r),
		Description:   r.Description,
		Image:         h.imageURL(r.Image),
	}
}

func (h *RecipeHandler) imageURL(key string) *string {
	if key == "" {
		return nil
	}
	url := h.recipes.ImageURL(key)
	return &url
}

func nonNil(attrs []model.Attribute) []model.Attribute {
	if attrs == nil {
		return []model.Attribute{}
	}
	return attrs
}

// HandleList returns the user's recipes, newest first.
//
// HTTP: GET /recipe/recipes?tags=1,2&ingredients=3
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	q := r.URL.Query()
	tagIDs, err := parseIDs("tags", q.Get("tags"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ingredientIDs, err := parseIDs("ingredients", q.Get("ingredients"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipes, err := h.recipes.List(r.Context(), user.ID, tagIDs, ingredientIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]recipeSummary, 0, len(recipes))
	for i := range recipes {
		out = append(out, newRecipeSummary(&recipes[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreate creates a recipe, resolving nested tag and ingredient names.
//
// HTTP: POST /recipe/recipes
// REQUEST BODY: {"title": "...", "time_minutes": 5, "price": "5.50",
// "tags": [{"name": "Thai"}], "ingredients": [{"name": "Prawns"}]}
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.detail(recipe))
}

// HandleGet returns one recipe in the detail shape.
//
// HTTP: GET /recipe/recipes/{id}
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.detail(recipe))
}

// HandlePatch applies a partial update.
//
// HTTP: PATCH /recipe/recipes/{id}
func (h *RecipeHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// HandlePut applies a full update: title, time_minutes and price are required.
//
// HTTP: PUT /recipe/recipes/{id}
func (h *RecipeHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *RecipeHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Update(r.Context(), user.ID, id, in, full)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.detail(recipe))
}

// HandleDelete removes a recipe.
//
// HTTP: DELETE /recipe/recipes/{id} → 204
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUploadImage stores the multipart "image" field as the recipe's image.
//
// HTTP: POST /recipe/recipes/{id}/upload-image
// RESPONSE: 200 {"id": 1, "image": "/media/uploads/recipe/<uuid>.png"}
func (h *RecipeHandler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Room for the image plus the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			err = apperror.ValidationFailed("image", "The submitted file is too large.")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			err = apperror.ValidationFailed("image", "No file was submitted.")
		default:
			err = apperror.ValidationFailed("image", "The submitted data was not a file.")
		}
		writeError(w, h.logger, err)
		return
	}
	defer file.Close()

	recipe, err := h.recipes.UploadImage(r.Context(), user.ID, id, header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{ID: recipe.ID, Image: h.imageURL(recipe.Image)})
}
