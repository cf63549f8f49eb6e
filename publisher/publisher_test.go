package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3030/mf/metrics", MetricsURL("http://localhost:3030"))
}

func TestExperimentsURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3030/mf/experiments/infrastructure", ExperimentsURL("http://localhost:3030", "infrastructure"))
}

func TestPublishJSONSendsExpectedHeaders(t *testing.T) {
	var gotAccept, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	err := c.PublishJSON(context.Background(), srv.URL, `[{"a":1}]`)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `[{"a":1}]`, gotBody)
}

func TestPublishJSONFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	err := c.PublishJSON(context.Background(), srv.URL, `[{"a":1}]`)
	assert.Error(t, err)
}

func TestPublishJSONRejectsEmptyURL(t *testing.T) {
	c := New(time.Second)
	err := c.PublishJSON(context.Background(), "", "body")
	assert.Error(t, err)
}

func TestCreateExperimentParsesExperimentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"experiment_id":"exp-123"}`))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	id, err := c.CreateExperiment(context.Background(), srv.URL, "infrastructure", "", "localhost")
	require.NoError(t, err)
	assert.Equal(t, "exp-123", id)
}

func TestCreateExperimentFailsWhenIDMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	_, err := c.CreateExperiment(context.Background(), srv.URL, "infrastructure", "", "localhost")
	assert.Error(t, err)
}
