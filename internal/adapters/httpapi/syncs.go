package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/signage-agent/internal/app"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/httpjson"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

type SyncsHandler struct {
	journal ports.SyncJournal
}

func NewSyncsHandler(journal ports.SyncJournal) *SyncsHandler {
	return &SyncsHandler{journal: journal}
}

func (h *SyncsHandler) Routes(r chi.Router) {
	r.Route("/syncs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
}

// SyncDTO est la forme JSON d'une entrée du journal.
type SyncDTO struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	PlaylistID string    `json:"playlistId,omitempty"`
	Outcome    string    `json:"outcome"`
	Videos     int       `json:"videos"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
}

func toSyncDTO(rec domain.SyncRecord) SyncDTO {
	return SyncDTO{
		ID:         rec.ID,
		Source:     string(rec.Source),
		PlaylistID: rec.PlaylistID,
		Outcome:    string(rec.Outcome),
		Videos:     rec.VideoCount,
		ErrorKind:  rec.ErrorKind,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		DurationMs: rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
	}
}

func (h *SyncsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.journal.List(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]SyncDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSyncDTO(rec))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *SyncsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.journal.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, toSyncDTO(rec))
}
