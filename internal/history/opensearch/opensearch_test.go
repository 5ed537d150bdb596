package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproc/warden/internal/history"
)

func TestSinkPostsDocument(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "warden-history")
	err := s.Send(context.Background(), history.Event{
		Type:       "started",
		OccurredAt: time.Now(),
		ProcessID:  "p1",
		TaskID:     "t1",
		PID:        7,
	})
	require.NoError(t, err)
	assert.Equal(t, "/warden-history/_doc", gotPath)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	assert.Equal(t, "p1", doc["process_id"])
}

func TestSinkSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(srv.URL, "idx")
	err := s.Send(context.Background(), history.Event{Type: "started"})
	assert.Error(t, err)
}
