package handlers

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/krivanek/rollcall/internal/enroll"
	"github.com/krivanek/rollcall/internal/gallery"
)

// maxEnrollUpload bounds the multipart form size for enrollment requests.
const maxEnrollUpload = 32 << 20

// IdentityStore is the persistence surface the identities API needs.
type IdentityStore interface {
	DeleteIdentity(ctx context.Context, id string) error
}

// IdentitiesHandler manages the registered identities.
type IdentitiesHandler struct {
	gallery  *gallery.Gallery
	store    IdentityStore
	enroller *enroll.Enroller
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(g *gallery.Gallery, store IdentityStore, enroller *enroll.Enroller) *IdentitiesHandler {
	return &IdentitiesHandler{gallery: g, store: store, enroller: enroller}
}

type identitySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Department  string `json:"department,omitempty"`
	Year        int    `json:"year,omitempty"`
	SampleCount int    `json:"sample_count"`
}

// List returns all registered identities in enrollment order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.gallery.Identities()
	out := make([]identitySummary, 0, len(ids))
	for _, id := range ids {
		meta, ok := h.gallery.MetadataOf(id)
		if !ok {
			continue
		}
		out = append(out, identitySummary{
			ID:          id,
			Name:        meta.Name,
			Department:  meta.Department,
			Year:        meta.Year,
			SampleCount: len(h.gallery.TemplatesOf(id)),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(out),
		"identities": out,
	})
}

// Enroll registers a new identity from uploaded sample images. The form
// carries id, name and optional metadata fields plus 3-7 files under
// "samples".
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxEnrollUpload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	id := r.FormValue("id")
	name := r.FormValue("name")
	if id == "" || name == "" {
		respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	year, _ := strconv.Atoi(r.FormValue("year"))

	files := r.MultipartForm.File["samples"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no sample images uploaded")
		return
	}

	var samples []image.Image
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "cannot read uploaded file")
			return
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "cannot decode uploaded image")
			return
		}
		samples = append(samples, img)
	}

	meta := gallery.Metadata{
		Name:       name,
		Email:      r.FormValue("email"),
		Department: r.FormValue("department"),
		Year:       year,
	}

	rec, err := h.enroller.Enroll(r.Context(), id, meta, samples)
	if err != nil {
		log.Printf("enroll %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, identitySummary{
		ID:          rec.ID,
		Name:        rec.Meta.Name,
		Department:  rec.Meta.Department,
		Year:        rec.Meta.Year,
		SampleCount: rec.Meta.SampleCount,
	})
}

// Delete removes an identity from the store and the live gallery.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing identity id")
		return
	}
	if _, ok := h.gallery.MetadataOf(id); !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	if err := h.store.DeleteIdentity(r.Context(), id); err != nil {
		log.Printf("delete identity %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	h.gallery.Remove(id)

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
