package designs

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"designdeck/core"
)

// createRequest is the payload for creating a design. Width and height are
// fixed for the lifetime of the design.
type createRequest struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// HandleList returns metadata for all stored designs.
func HandleList(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		designs, err := store.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list designs")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list designs"})
			return
		}
		if designs == nil {
			designs = []*core.Design{}
		}
		render.JSON(w, r, designs)
	}
}

// HandleCreate allocates a new empty design with a fresh ULID.
func HandleCreate(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if req.Width <= 0 || req.Height <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Canvas width and height must be positive"})
			return
		}

		now := time.Now()
		design := &core.Design{
			ID:        ulid.Make().String(),
			Name:      req.Name,
			Width:     req.Width,
			Height:    req.Height,
			Elements:  make(map[string]core.Element),
			Order:     []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.Save(r.Context(), design); err != nil {
			logrus.WithFields(logrus.Fields{
				"design_id": design.ID,
				"error":     err,
			}).Error("Failed to create design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create design"})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, design)
	}
}

// HandleGet returns one design with its full element payload. This is the
// endpoint editor sessions hit for authoritative reconciliation.
func HandleGet(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		design, err := store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrDesignNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Design not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"design_id": id,
				"error":     err,
			}).Error("Failed to get design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get design"})
			return
		}
		render.JSON(w, r, design)
	}
}

// HandleSave stores the full design document under the path id.
func HandleSave(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var design core.Design
		if err := json.NewDecoder(r.Body).Decode(&design); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid design body"})
			return
		}
		design.ID = id
		if design.Elements == nil {
			design.Elements = make(map[string]core.Element)
		}

		if err := store.Save(r.Context(), &design); err != nil {
			logrus.WithFields(logrus.Fields{
				"design_id": id,
				"error":     err,
			}).Error("Failed to save design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save design"})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

// HandleDelete removes a design.
func HandleDelete(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, core.ErrDesignNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Design not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"design_id": id,
				"error":     err,
			}).Error("Failed to delete design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete design"})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
