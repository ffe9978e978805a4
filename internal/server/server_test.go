package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/cost-model-service/internal/articles"
	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/testutil"
)

type nopScheduler struct{}

func (nopScheduler) Schedule(ctx context.Context, articleID uint) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRouter(Deps{
		Articles: articles.NewHandlers(articles.NewStore(db), nopScheduler{}, 1<<20, logger),
		Indices:  indices.NewProvider(db),
		DB:       sqlDB,
		Logger:   logger,
	})
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)

	for path, want := range map[string]int{
		"/health":                   http.StatusOK,
		"/ready":                    http.StatusOK,
		"/api/v1/indices":           http.StatusOK,
		"/api/v1/articles":          http.StatusOK,
		"/api/v1/articles/5/status": http.StatusNotFound,
		"/nope":                     http.StatusNotFound,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: expected status %d, got %d", path, want, w.Code)
		}
	}
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/articles/123/status", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, `path="/api/v1/articles/:id/status"`) {
		t.Error("expected request to be labeled with its route pattern")
	}
	if strings.Contains(body, "/api/v1/articles/123/status") {
		t.Error("expected raw article ids to stay out of metric labels")
	}
}
