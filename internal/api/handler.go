// Package api implements the share API (component D): HTTP endpoints for
// document CRUD and listing, on top of gin.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collab-docs/backend/internal/apperr"
	"github.com/collab-docs/backend/internal/cache"
	"github.com/collab-docs/backend/internal/consistency"
	"github.com/collab-docs/backend/internal/models"
	"github.com/collab-docs/backend/internal/sanitize"
	"github.com/collab-docs/backend/internal/store"
)

// Handler holds the share API's dependencies.
type Handler struct {
	store   *store.Store
	cache   *cache.Cache
	maxMD   int
	maxHTML int

	publicBaseURL string
	wsBaseURL     string
	startedAt     time.Time
	version       string
}

// Config carries the handler's external-facing settings.
type Config struct {
	PublicBaseURL    string // e.g. https://notes.example.com
	WSBaseURL        string // e.g. wss://collab.example.com
	MaxMarkdownBytes int
	MaxHTMLBytes     int
	Version          string
}

// NewHandler builds a Handler.
func NewHandler(st *store.Store, ca *cache.Cache, cfg Config) *Handler {
	return &Handler{
		store:         st,
		cache:         ca,
		maxMD:         cfg.MaxMarkdownBytes,
		maxHTML:       cfg.MaxHTMLBytes,
		publicBaseURL: cfg.PublicBaseURL,
		wsBaseURL:     cfg.WSBaseURL,
		startedAt:     time.Now(),
		version:       cfg.Version,
	}
}

// RegisterRoutes wires the share API's endpoints onto r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/health", h.Health)

	notes := r.Group("/api/notes")
	{
		notes.POST("/share", h.CreateShare)
		notes.GET("", h.ListShares)
		notes.GET("/:id", h.FetchShare)
		notes.PUT("/:id", h.UpdateShare)
		notes.DELETE("/:id", h.DeleteShare)
	}
}

func (h *Handler) viewURL(id string) string         { return h.publicBaseURL + "/view/" + id }
func (h *Handler) collaborativeURL(id string) string { return h.wsBaseURL + "/ws/" + id }

// createShareRequest is the body of POST /api/notes/share.
type createShareRequest struct {
	Title       string          `json:"title" binding:"required"`
	Content     string          `json:"content" binding:"required"`
	HTMLContent string          `json:"htmlContent"`
	Metadata    models.Metadata `json:"metadata"`
	ShareID     string          `json:"shareId"`
}

// CreateShare handles POST /api/notes/share.
func (h *Handler) CreateShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.KindValidation, err.Error()))
		return
	}

	id := req.ShareID
	if id == "" {
		id = uuid.New().String()
	}
	if err := store.ValidateID(id); err != nil {
		writeError(c, err)
		return
	}
	if err := store.ValidateTitle(req.Title); err != nil {
		writeError(c, err)
		return
	}
	if err := store.ValidateMarkdown(req.Content, h.maxMD); err != nil {
		writeError(c, err)
		return
	}
	if err := store.ValidateHTML(req.HTMLContent, h.maxHTML); err != nil {
		writeError(c, err)
		return
	}

	html := sanitize.Sanitize(req.HTMLContent)

	doc := &models.Document{
		ID:         id,
		Title:      req.Title,
		Markdown:   req.Content,
		HTML:       html,
		RenderMode: consistency.RenderMode(html),
		Metadata:   req.Metadata,
	}

	created, err := h.store.Create(c.Request.Context(), doc)
	if err != nil {
		writeError(c, err)
		return
	}

	_ = h.cache.InvalidateState(c.Request.Context(), created.ID)

	c.JSON(http.StatusCreated, gin.H{
		"shareId":          created.ID,
		"collaborativeUrl": h.collaborativeURL(created.ID),
		"viewUrl":          h.viewURL(created.ID),
		"title":            created.Title,
	})
}

// FetchShare handles GET /api/notes/:id.
func (h *Handler) FetchShare(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	var htmlContent interface{}
	if doc.HTML != "" {
		htmlContent = doc.HTML
	}

	c.JSON(http.StatusOK, gin.H{
		"shareId":          doc.ID,
		"title":            doc.Title,
		"content":          doc.Markdown,
		"htmlContent":      htmlContent,
		"renderMode":       doc.RenderMode,
		"viewUrl":          h.viewURL(doc.ID),
		"collaborativeUrl": h.collaborativeURL(doc.ID),
		"createdAt":        doc.CreatedAt,
		"updatedAt":        doc.UpdatedAt,
		"permissions":      "edit",
	})
}

// updateShareRequest is the body of PUT /api/notes/:id. Pointer fields
// distinguish "not supplied" from "supplied as empty".
type updateShareRequest struct {
	Title       *string         `json:"title"`
	Content     *string         `json:"content"`
	HTMLContent *string         `json:"htmlContent"`
	Metadata    models.Metadata `json:"metadata"`
}

// UpdateShare handles PUT /api/notes/:id.
func (h *Handler) UpdateShare(c *gin.Context) {
	id := c.Param("id")

	var req updateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.KindValidation, err.Error()))
		return
	}

	if req.Title != nil {
		if err := store.ValidateTitle(*req.Title); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Content != nil {
		if err := store.ValidateMarkdown(*req.Content, h.maxMD); err != nil {
			writeError(c, err)
			return
		}
	}

	patch := models.Patch{Title: req.Title, Markdown: req.Content, Metadata: req.Metadata}
	if req.HTMLContent != nil {
		if err := store.ValidateHTML(*req.HTMLContent, h.maxHTML); err != nil {
			writeError(c, err)
			return
		}
		sanitized := sanitize.Sanitize(*req.HTMLContent)
		patch.HTML = &sanitized
	}

	updated, err := h.store.Update(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, err)
		return
	}

	_ = h.cache.InvalidateState(c.Request.Context(), id)

	c.JSON(http.StatusOK, gin.H{"success": true, "updatedAt": updated.UpdatedAt})
}

// DeleteShare handles DELETE /api/notes/:id.
func (h *Handler) DeleteShare(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	_ = h.cache.InvalidateState(c.Request.Context(), id)
	c.Status(http.StatusNoContent)
}

// ListShares handles GET /api/notes.
func (h *Handler) ListShares(c *gin.Context) {
	filter := store.ListFilter{
		Source: c.Query("source"),
		Tag:    c.Query("tag"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	summaries, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": summaries})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeError(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := statusForKind(kind)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindTransient, apperr.KindCacheOutage:
		return http.StatusServiceUnavailable
	case apperr.KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
