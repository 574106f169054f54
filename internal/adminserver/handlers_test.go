package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/graphdb"
	"github.com/raydb/raydb/internal/rlog"
)

func newTestDB(t *testing.T) *graphdb.DB {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := config.Default()
	opts.DataDir = t.TempDir()
	db, err := graphdb.Open(opts, rlog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHealthAndStats(t *testing.T) {
	db := newTestDB(t)
	r := NewRouter(db, rlog.Nop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "generation")
	require.Contains(t, body, "num_nodes")
}

func TestGetNodeNotFound(t *testing.T) {
	db := newTestDB(t)
	r := NewRouter(db, rlog.Nop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nodes/999", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNodeFound(t *testing.T) {
	db := newTestDB(t)
	r := NewRouter(db, rlog.Nop())

	txn := db.Begin()
	id, err := txn.CreateNode(nil)
	require.NoError(t, err)
	_, err = txn.Commit()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nodes/"+itoa(uint64(id)), nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func itoa(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
