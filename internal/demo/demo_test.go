package demo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/toyz/rewire/pkg/rewire"
	"github.com/toyz/rewire/pkg/rewire/adapters"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startDemo(t *testing.T) (*rewire.Runtime, http.Handler) {
	t.Helper()
	rt := rewire.New(
		rewire.WithLogger(zaptest.NewLogger(t)),
		rewire.WithMetricsRegisterer(prometheus.NewRegistry()),
		rewire.WithResources(Views),
	)
	rewire.SetDefault(rt)
	t.Cleanup(func() {
		rt.Jobs().Reset()
		rewire.SetDefault(nil)
	})

	adapter := adapters.NewDefaultGinAdapter()
	require.NoError(t, rt.DefaultSetup().Mount(adapter))
	require.NoError(t, rt.App().Run(context.Background(), Main, "dev.livereload=ws://localhost:9000/livereload"))
	return rt, adapter
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDemo_NotesLifecycle(t *testing.T) {
	_, handler := startDemo(t)
	before := notes.Len()

	rec := do(t, handler, http.MethodPost, "/api/notes", `{"text":"remember the milk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var created Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "remember the milk", created.Text)
	assert.Equal(t, before+1, notes.Len())

	rec = do(t, handler, http.MethodGet, "/api/notes/"+itoa(created.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":`+itoa(created.ID)+`,"text":"remember the milk"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodPost, "/api/notes", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/api/notes/99999", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, handler, http.MethodDelete, "/api/notes/"+itoa(created.ID), "").Code)
}

func TestDemo_NotesDeleteFromMarkerText(t *testing.T) {
	rt, _ := startDemo(t)

	route, ok := rt.DefaultSetup().Routes().Get(http.MethodDelete, "/api/notes/{id:int}")
	require.True(t, ok)
	assert.Equal(t, []string{"editor"}, route.Roles)
	assert.Equal(t, "Delete", route.Operation)
}

func TestDemo_Pages(t *testing.T) {
	rt, handler := startDemo(t)

	rec := do(t, handler, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Rewire</h1>")
	assert.Contains(t, rec.Body.String(), rt.Epoch().ID)
	assert.Contains(t, rec.Body.String(), "new WebSocket(")
	assert.Contains(t, rec.Body.String(), "localhost:9000")

	rec = do(t, handler, http.MethodPost, "/about", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reconciled")
}

func TestDemo_RestartRebuildsRoutes(t *testing.T) {
	rt, handler := startDemo(t)
	routes := rt.DefaultSetup().Routes().Len()
	assert.Equal(t, 7, routes)

	rt.DefaultSetup().GET("/api/scratch").JSON(func(rewire.RequestContext) (any, error) { return "tmp", nil })
	rt.App().NotifyChanges()

	// the next request performs the restart before it is served
	rec := do(t, handler, http.MethodGet, "/api/epoch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var epoch struct {
		ID        string `json:"id"`
		Seq       uint64 `json:"seq"`
		Restarted bool   `json:"restarted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &epoch))
	assert.True(t, epoch.Restarted)
	assert.Equal(t, rt.Epoch().ID, epoch.ID)

	assert.Equal(t, routes, rt.DefaultSetup().Routes().Len())
	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/api/scratch", "").Code)
	assert.Equal(t, "ws://localhost:9000/livereload", rt.Config().Str(LiveReloadKey))
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
