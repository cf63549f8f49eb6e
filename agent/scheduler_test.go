package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmmontanana/phantom-monitoring-client/config"
	"github.com/jmmontanana/phantom-monitoring-client/model"
	"github.com/jmmontanana/phantom-monitoring-client/publisher"
	"github.com/jmmontanana/phantom-monitoring-client/registry"
)

// countingSampler implements registry.Sampler, incrementing a shared
// counter on every Sample call, for asserting the worker loop's cadence
// and batching behavior.
type countingSampler struct {
	mu    sync.Mutex
	count int
}

func (c *countingSampler) Init(buf *model.SampleBuffer, requestedEvents []string) error {
	buf.Init([]string{"fake_event"})
	return nil
}

func (c *countingSampler) Sample(buf *model.SampleBuffer) error {
	c.mu.Lock()
	c.count++
	n := c.count
	c.mu.Unlock()
	buf.SetValue(0, float32(n))
	return nil
}

func (c *countingSampler) ToJSON(buf *model.SampleBuffer, requestedEvents []string) string {
	return `"plugin":"fake","fake_event":1`
}

func (c *countingSampler) Shutdown() {}

func writeTestINI(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mf_config.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestSchedulerPublishesOnceBulkSizeReached(t *testing.T) {
	var received []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		mu.Lock()
		received = append(received, string(buf))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeTestINI(t, "[plugins]\nfake=fake_event\n[timings]\ndefault=1000000\n")
	store, err := config.NewStore(path)
	require.NoError(t, err)

	reg := registry.New()
	factories := map[string]registry.Factory{
		"fake": func() registry.Sampler { return &countingSampler{} },
	}
	reg = registry.Discover(store.Snapshot(), factories, time.Millisecond)
	require.Equal(t, 1, reg.Count())

	client := publisher.New(2 * time.Second)
	ctx := model.ExperimentContext{ApplicationID: "infrastructure", TaskID: "t1", ExperimentID: "e1", HostID: "h1"}

	sched := NewScheduler(reg, store, client, ctx, 3, srv.URL, time.Hour, path)
	sched.Start()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, received)
	assert.Contains(t, received[0], `"WorkflowID":"infrastructure"`)
	assert.Contains(t, received[0], `"fake_event"`)
}

func TestSchedulerStopWaitsForWorkers(t *testing.T) {
	path := writeTestINI(t, "[plugins]\nfake=fake_event\n[timings]\ndefault=1000000\n")
	store, err := config.NewStore(path)
	require.NoError(t, err)

	factories := map[string]registry.Factory{
		"fake": func() registry.Sampler { return &countingSampler{} },
	}
	reg := registry.Discover(store.Snapshot(), factories, time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := publisher.New(time.Second)
	ctx := model.ExperimentContext{}
	sched := NewScheduler(reg, store, client, ctx, 1000, srv.URL, time.Hour, path)
	sched.Start()
	time.Sleep(20 * time.Millisecond)
	sched.Stop() // must return without hanging
}
