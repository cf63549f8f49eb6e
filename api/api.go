// Package api is the embedded monitoring library, grounded on
// original_source/src/api/src/mf_api.c: a program links this package in
// directly (instead of running the standalone agent binary) to sample a
// handful of metrics around a region of its own execution and upload the
// result on demand.
//
// The shape follows mf_start/mf_end/mf_send closely: Start launches one
// goroutine per requested metric, each appending JSON lines to its own
// file under a per-process data directory; End joins every goroutine; Send
// creates an experiment and uploads every file Start produced. "resources"
// reuses the standalone agent's Linux_resources plugin; "disk" and
// "power" are rebuilt as dedicated per-process monitors (their original
// C bodies were either never retrieved or are inherently per-pid, unlike
// the agent's system-wide plugins); CPU_perf/CPU_FF_perf/Board_power are
// reachable too, under their registry names, as a supplement beyond the
// original library's fixed three-metric surface.
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/cihub/seelog"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/publisher"
	"github.com/jmmontanana/phantom-monitoring-client/registry"
)

// MetricRequest names one metric to sample and the interval to sample it
// at, the Go analogue of a (metrics_names[i], sampling_interval[i]) pair
// in the original metrics struct.
type MetricRequest struct {
	Name     string
	Interval time.Duration
}

// Session is one Start/End/Send lifecycle. The original library kept this
// state in package-level globals (running, DataPath, threads); Session
// makes that state an explicit, non-global value so a single process can
// in principle run more than one monitoring session without them
// colliding, while Start/End/Send below still offer the original's
// single-session, package-level convenience functions for direct ports.
type Session struct {
	dataPath         string
	reg              *registry.Registry
	names            []string
	processIntervals map[string]time.Duration
	root             string // /proc and /sys root override, for tests

	running int32
	wg      sync.WaitGroup
}

var (
	defaultMu      sync.Mutex
	defaultSession *Session
)

// Start creates the per-process data directory, launches one sampling
// goroutine per requested metric, and returns the directory path, matching
// mf_start's return value.
func Start(requests []MetricRequest) (string, error) {
	s, err := newSession(requests)
	if err != nil {
		return "", err
	}
	s.start()
	defaultMu.Lock()
	defaultSession = s
	defaultMu.Unlock()
	return s.dataPath, nil
}

// End stops every worker goroutine started by Start and waits for them to
// finish their current write, matching mf_end's pthread_join loop.
func End() {
	defaultMu.Lock()
	s := defaultSession
	defaultMu.Unlock()
	if s == nil {
		return
	}
	s.stop()
}

// Send creates an experiment for applicationID/componentID/platformID and
// uploads every file the session produced, returning the server-assigned
// experiment ID, matching mf_send. Unlike the original, which stops at the
// first readdir entry it can open, every file under the data directory is
// uploaded and a failure on one file is logged and skipped rather than
// aborting the rest — an embedding program's data directory should not
// lose the metrics that did upload because one file had a transient
// failure.
func Send(client *publisher.Client, server, applicationID, componentID, platformID string) (string, error) {
	defaultMu.Lock()
	s := defaultSession
	defaultMu.Unlock()
	if s == nil {
		return "", fmt.Errorf("%w: Send called before Start", mferrors.ErrPublishFailed)
	}
	return s.send(client, server, applicationID, componentID, platformID)
}

func newSession(requests []MetricRequest) (*Session, error) {
	dataPath, err := prepareDataPath()
	if err != nil {
		return nil, err
	}

	reg, names, processIntervals, err := buildRegistry(requests)
	if err != nil {
		return nil, err
	}

	s := &Session{dataPath: dataPath, reg: reg, names: names, processIntervals: processIntervals, root: "/"}
	return s, nil
}

// prepareDataPath builds <executable directory>/<pid>, matching
// api_prepare()'s path extracted from /proc/self/exe plus a pid-named
// subdirectory.
func prepareDataPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: could not resolve executable path: %v", mferrors.ErrThreadCreateFailed, err)
	}
	dir := filepath.Join(filepath.Dir(exe), fmt.Sprintf("%d", os.Getpid()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: could not create data directory %s: %v", mferrors.ErrThreadCreateFailed, dir, err)
	}
	return dir, nil
}

func (s *Session) start() {
	atomic.StoreInt32(&s.running, 1)
	for _, name := range s.names {
		s.wg.Add(1)
		go s.runMonitor(name)
	}
}

func (s *Session) stop() {
	atomic.StoreInt32(&s.running, 0)
	s.wg.Wait()
	s.reg.Shutdown()
	log.Infof("api: session stopped, data written to %s", s.dataPath)
}

func (s *Session) send(client *publisher.Client, server, applicationID, componentID, platformID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	experimentID, err := client.CreateExperimentAt(ctx, ExperimentsURL(server, applicationID), applicationID, componentID, platformID)
	if err != nil || experimentID == "" {
		return "", fmt.Errorf("%w: could not create experiment for application %s", mferrors.ErrExperimentCreationFailed, applicationID)
	}

	entries, err := os.ReadDir(s.dataPath)
	if err != nil {
		return "", fmt.Errorf("%w: could not open data directory %s: %v", mferrors.ErrPublishFailed, s.dataPath, err)
	}

	metricURL := MetricsURL(server)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		staticPrefix := fmt.Sprintf(`"WorkflowID":"%s","TaskID":"%s","ExperimentID":"%s","type":"%s","host":"%s"`,
			applicationID, componentID, experimentID, entry.Name(), platformID)
		path := filepath.Join(s.dataPath, entry.Name())
		if err := uploadFile(client, metricURL, staticPrefix, path); err != nil {
			log.Warnf("api: could not upload %s: %v", path, err)
			continue
		}
	}
	return experimentID, nil
}

// MetricsURL and ExperimentsURL carry the embedded library's own "/v1/"
// prefix, distinct from the standalone agent's publisher.MetricsURL —
// mf_send builds "%s/v1/mf/metrics" and "%s/v1/mf/experiments/%s", one
// path segment ahead of the agent's "%s/mf/metrics".
func MetricsURL(server string) string {
	return server + "/v1/mf/metrics"
}

func ExperimentsURL(server, applicationID string) string {
	return server + "/v1/mf/experiments/" + applicationID
}
