// Package publisher sends completed batches to the metrics server and
// creates experiments on startup, grounded on
// original_source/src/publisher/src/publisher.c and
// original_source/src/agent/main.c's prepare().
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/cihub/seelog"
	"github.com/google/uuid"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// requestIDHeader carries a per-call correlation ID on every outbound
// publish/experiment-creation request, distinct from the configured host_id
// and the server-assigned experiment_id, so a single call can be traced through this
// process's logs and the server's independently of the batch it carries.
const requestIDHeader = "X-Request-Id"

// Client publishes JSON batches and creates experiments over HTTP. A
// dedicated HTTP client library is out of scope (spec.md's external
// interfaces section treats the HTTP client as an interface, not an
// implementation choice); net/http's Client is the idiomatic substitute
// for the original's libcurl easy handle.
type Client struct {
	httpClient *http.Client
}

// New returns a Client with a bounded per-request timeout; the original
// publisher never set one, relying on libcurl's defaults, but a
// one-shot publisher with no retry (spec.md §4.6) should not be able to
// hang the sampler worker that calls it indefinitely.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// MetricsURL builds the metrics publish endpoint from a server base URL,
// matching prepare()'s "%s/mf/metrics" construction.
func MetricsURL(serverURL string) string {
	return serverURL + "/mf/metrics"
}

// ExperimentsURL builds the experiment-creation endpoint, matching
// prepare()'s "%s/mf/experiments/%s" construction.
func ExperimentsURL(serverURL, applicationID string) string {
	return serverURL + "/mf/experiments/" + applicationID
}

// PublishJSON sends a single batch to url. On any failure the batch is
// dropped — spec.md §4.6/§7 call for no retry, since a missed window is
// superseded by the next one.
func (c *Client) PublishJSON(ctx context.Context, url, body string) error {
	if url == "" {
		return fmt.Errorf("%w: publish URL not set", mferrors.ErrPublishFailed)
	}
	if body == "" {
		return fmt.Errorf("%w: publish message not set", mferrors.ErrPublishFailed)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("%w: %v", mferrors.ErrPublishFailed, err)
	}
	setJSONHeaders(req)
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request %s: %v", mferrors.ErrPublishFailed, requestID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: request %s: server responded %s", mferrors.ErrPublishFailed, requestID, resp.Status)
	}
	log.Debugf("publisher: request %s published to %s", requestID, url)
	return nil
}

// CreateExperiment registers a new experiment for applicationID/taskID on
// platformID and returns the server-assigned experiment ID, matching
// prepare()'s create_new_experiment() call and the JSON body it sends.
func (c *Client) CreateExperiment(ctx context.Context, serverURL, applicationID, taskID, platformID string) (string, error) {
	return c.CreateExperimentAt(ctx, ExperimentsURL(serverURL, applicationID), applicationID, taskID, platformID)
}

// CreateExperimentAt is CreateExperiment against an explicit url instead of
// one derived from ExperimentsURL, for callers whose experiment-creation
// endpoint differs from the standalone agent's unversioned one — the
// embedded api package's own versioned api.ExperimentsURL, in particular.
func (c *Client) CreateExperimentAt(ctx context.Context, url, applicationID, taskID, platformID string) (string, error) {
	body := fmt.Sprintf(`{"application":"%s", "task": "%s", "host": "%s"}`, applicationID, taskID, platformID)
	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", mferrors.ErrExperimentCreationFailed, err)
	}
	setJSONHeaders(req)
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request %s: %v", mferrors.ErrExperimentCreationFailed, requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: request %s: server responded %s for application %q", mferrors.ErrExperimentCreationFailed, requestID, resp.Status, applicationID)
	}

	experimentID, err := model.DecodeExperimentResponse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mferrors.ErrExperimentCreationFailed, err)
	}
	log.Infof("publisher: request %s created experiment %s for application %s, task %s", requestID, experimentID, applicationID, taskID)
	return experimentID, nil
}

func setJSONHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("charsets", "utf-8")
}
