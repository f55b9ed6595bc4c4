package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/collab-docs/backend/internal/apperr"
)

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindTooLarge, http.StatusRequestEntityTooLarge},
		{apperr.KindRateLimited, http.StatusTooManyRequests},
		{apperr.KindUnauthorized, http.StatusUnauthorized},
		{apperr.KindTransient, http.StatusServiceUnavailable},
		{apperr.KindCacheOutage, http.StatusServiceUnavailable},
		{apperr.Kind("something-unrecognized"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusForKind(c.kind); got != c.want {
			t.Errorf("statusForKind(%v) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestWriteErrorUnwrapsPlainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, apperr.New(apperr.KindNotFound, `document "abc" not found`))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestQueryInt(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newCtx := func(url string) *gin.Context {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, url, nil)
		return c
	}

	if got := queryInt(newCtx("/notes"), "limit", 50); got != 50 {
		t.Errorf("default: got %d, want 50", got)
	}
	if got := queryInt(newCtx("/notes?limit=10"), "limit", 50); got != 10 {
		t.Errorf("explicit: got %d, want 10", got)
	}
	if got := queryInt(newCtx("/notes?limit=-5"), "limit", 50); got != 50 {
		t.Errorf("negative falls back to default: got %d, want 50", got)
	}
	if got := queryInt(newCtx("/notes?limit=nope"), "limit", 50); got != 50 {
		t.Errorf("non-numeric falls back to default: got %d, want 50", got)
	}
}

func TestViewAndCollaborativeURL(t *testing.T) {
	h := &Handler{publicBaseURL: "https://notes.example.com", wsBaseURL: "wss://collab.example.com"}
	if got := h.viewURL("abc"); got != "https://notes.example.com/view/abc" {
		t.Errorf("viewURL = %q", got)
	}
	if got := h.collaborativeURL("abc"); got != "wss://collab.example.com/ws/abc" {
		t.Errorf("collaborativeURL = %q", got)
	}
}
