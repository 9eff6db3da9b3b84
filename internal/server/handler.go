// Package server exposes the engine over HTTP using go-chi. Handlers stay
// thin: decode, delegate, encode. Long-running generation work is detached
// from the request so callers get an immediate acknowledgement.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"content_engine/internal/domain"
)

const apiVersion = "2.0.0"

// Workflow is the engine surface the HTTP layer depends on.
type Workflow interface {
	Run(ctx context.Context, in *domain.InputData) (*domain.ContentPackage, error)
	RunBatch(ctx context.Context, inputs []domain.InputData) []*domain.ContentPackage
	RunChannelBatch(ctx context.Context, channelID string, inputs []domain.InputData) []*domain.ContentPackage
	Get(packageID string) *domain.ContentPackage
	ListByChannel(channelID string) []*domain.ContentPackage
	ListAll() []*domain.ContentPackage
	Statistics() map[string]*domain.ChannelStats
	SelectImage(ctx context.Context, packageID, imageURL string) error
	Sweep(maxAge time.Duration) int
}

// ChannelStore is the registry surface the HTTP layer depends on.
type ChannelStore interface {
	Get(channelID string) *domain.ChannelConfig
	List() []*domain.ChannelConfig
	Add(ch *domain.ChannelConfig) error
	Update(channelID string, upd *domain.ChannelConfig) (bool, error)
	Remove(channelID string) (bool, error)
}

// Handler exposes engine and registry operations as JSON endpoints.
type Handler struct {
	workflow Workflow
	channels ChannelStore
	maxAge   time.Duration
	logger   *slog.Logger
}

func NewHandler(workflow Workflow, channels ChannelStore, maxAge time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		channels: channels,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "http")),
	}
}

// Routes mounts every API endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Post("/", h.CreateChannel)
			r.Route("/{channel_id}", func(r chi.Router) {
				r.Get("/", h.GetChannel)
				r.Put("/", h.UpdateChannel)
				r.Delete("/", h.DeleteChannel)
				r.Post("/batch", h.CreateBatch)
				r.Get("/packages", h.ListChannelPackages)
			})
		})

		r.Post("/content", h.CreateContent)

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", h.ListPackages)
			r.Get("/{package_id}", h.GetPackage)
			r.Post("/{package_id}/select-image", h.SelectImage)
		})

		r.Get("/statistics", h.Statistics)
		r.Post("/cleanup", h.Cleanup)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   apiVersion,
	})
}

// CreateChannel handles POST /api/channels.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var ch domain.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel body")
		return
	}
	if ch.ChannelID == "" || ch.ChannelName == "" {
		writeError(w, http.StatusBadRequest, "channel_id and channel_name are required")
		return
	}

	if err := h.channels.Add(&ch); err != nil {
		h.logger.Error("add channel failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"channel_id": ch.ChannelID,
	})
}

// ListChannels handles GET /api/channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": h.channels.List()})
}

// GetChannel handles GET /api/channels/{channel_id}.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch := h.channels.Get(chi.URLParam(r, "channel_id"))
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// UpdateChannel handles PUT /api/channels/{channel_id}.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")

	var upd domain.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel body")
		return
	}

	ok, err := h.channels.Update(channelID, &upd)
	if err != nil {
		h.logger.Error("update channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel_id": channelID})
}

// DeleteChannel handles DELETE /api/channels/{channel_id}.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")

	ok, err := h.channels.Remove(channelID)
	if err != nil {
		h.logger.Error("remove channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel_id": channelID})
}

type contentRequest struct {
	ChannelName        string `json:"channel_name"`
	ChannelDescription string `json:"channel_description"`
	VideoTopic         string `json:"video_topic"`
	AdditionalContext  string `json:"additional_context,omitempty"`
	VideoFrameFile     string `json:"video_frame_file,omitempty"`
	VideoFrameURL      string `json:"video_frame_url,omitempty"`
	Count              int    `json:"count,omitempty"`
}

// CreateContent handles POST /api/content. A single request runs inline and
// returns the finished package id; count > 1 fans out unique variations in
// the background and returns immediately.
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid content body")
		return
	}
	if req.ChannelName == "" || req.ChannelDescription == "" || req.VideoTopic == "" {
		writeError(w, http.StatusBadRequest, "channel_name, channel_description and video_topic are required")
		return
	}

	in := domain.InputData{
		ChannelID:          h.matchChannelByName(req.ChannelName),
		ChannelName:        req.ChannelName,
		ChannelDescription: req.ChannelDescription,
		VideoTopic:         req.VideoTopic,
		AdditionalContext:  req.AdditionalContext,
		VideoFrameFile:     req.VideoFrameFile,
		VideoFrameURL:      req.VideoFrameURL,
	}

	if req.Count <= 1 {
		pkg, err := h.workflow.Run(r.Context(), &in)
		if err != nil {
			h.logger.Error("content generation failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success":    false,
				"package_id": pkg.ID,
				"error":      err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"package_id": pkg.ID,
			"status":     pkg.Status,
		})
		return
	}

	inputs := make([]domain.InputData, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		variation := in
		variation.AdditionalContext = fmt.Sprintf("%s | Generate unique variation #%d", in.AdditionalContext, i+1)
		inputs = append(inputs, variation)
	}

	go func() {
		h.logger.Info("starting content variations",
			slog.String("topic", in.VideoTopic),
			slog.Int("count", len(inputs)),
		)
		h.workflow.RunBatch(context.Background(), inputs)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": fmt.Sprintf("started %d content variations for %s", req.Count, req.ChannelName),
		"count":   req.Count,
	})
}

// matchChannelByName maps a free-form channel name back onto a registered
// channel id so routing still targets the right sheet.
func (h *Handler) matchChannelByName(name string) string {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, ch := range h.channels.List() {
		if strings.ToLower(strings.TrimSpace(ch.ChannelName)) == want {
			return ch.ChannelID
		}
	}
	return ""
}

type batchRequest struct {
	Topics            []string `json:"topics"`
	AdditionalContext string   `json:"additional_context,omitempty"`
}

// CreateBatch handles POST /api/channels/{channel_id}/batch.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")

	ch := h.channels.Get(channelID)
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch body")
		return
	}
	if len(req.Topics) == 0 {
		writeError(w, http.StatusBadRequest, "topics are required")
		return
	}

	inputs := make([]domain.InputData, 0, len(req.Topics))
	for _, topic := range req.Topics {
		inputs = append(inputs, domain.InputData{
			ChannelID:         channelID,
			VideoTopic:        strings.TrimSpace(topic),
			AdditionalContext: req.AdditionalContext,
		})
	}

	go func() {
		h.workflow.RunChannelBatch(context.Background(), channelID, inputs)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("started %d packages for channel %s", len(inputs), ch.ChannelName),
		"channel_id":  channelID,
		"topic_count": len(inputs),
	})
}

// GetPackage handles GET /api/packages/{package_id}.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	pkg := h.workflow.Get(chi.URLParam(r, "package_id"))
	if pkg == nil {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"package_id": pkg.ID,
		"channel_id": pkg.ChannelID,
		"status":     pkg.Status,
		"created_at": pkg.CreatedAt,
		"updated_at": pkg.UpdatedAt,
		"content":    pkg.GeneratedContent,
		"images":     pkg.GeneratedImages,
		"logs":       pkg.Logs,
	})
}

// ListPackages handles GET /api/packages.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages := h.workflow.ListAll()

	result := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		entry := map[string]any{
			"package_id":   pkg.ID,
			"channel_id":   pkg.ChannelID,
			"channel_name": pkg.Input.ChannelName,
			"status":       pkg.Status,
			"created_at":   pkg.CreatedAt,
		}
		if pkg.GeneratedContent != nil {
			entry["title"] = pkg.GeneratedContent.Title
		}
		result = append(result, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": result})
}

// ListChannelPackages handles GET /api/channels/{channel_id}/packages.
func (h *Handler) ListChannelPackages(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")

	ch := h.channels.Get(channelID)
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	packages := h.workflow.ListByChannel(channelID)
	result := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		entry := map[string]any{
			"package_id": pkg.ID,
			"status":     pkg.Status,
			"created_at": pkg.CreatedAt,
		}
		if pkg.GeneratedContent != nil {
			entry["title"] = pkg.GeneratedContent.Title
		}
		if pkg.GeneratedImages != nil {
			entry["thumbnail_url"] = pkg.GeneratedImages.ThumbnailURL
		}
		result = append(result, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id":   channelID,
		"channel_name": ch.ChannelName,
		"packages":     result,
	})
}

// Statistics handles GET /api/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": h.workflow.Statistics()})
}

type selectImageRequest struct {
	ImageURL string `json:"image_url"`
}

// SelectImage handles POST /api/packages/{package_id}/select-image.
func (h *Handler) SelectImage(w http.ResponseWriter, r *http.Request) {
	packageID := chi.URLParam(r, "package_id")

	var req selectImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return
	}

	if err := h.workflow.SelectImage(r.Context(), packageID, req.ImageURL); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("select image failed", slog.String("package_id", packageID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "package_id": packageID})
}

// Cleanup handles POST /api/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed := h.workflow.Sweep(h.maxAge)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": removed})
}
