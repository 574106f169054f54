package adminclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAndNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stats":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"generation":3,"num_nodes":10}`))
		case "/nodes/1":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"node not found"}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 0)

	s, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Generation)
	assert.EqualValues(t, 10, s.NumNodes)

	exists, err := c.NodeExists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAPIErrorOnServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
}
