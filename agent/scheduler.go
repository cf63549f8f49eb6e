package main

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/cihub/seelog"

	"github.com/jmmontanana/phantom-monitoring-client/config"
	"github.com/jmmontanana/phantom-monitoring-client/metrics"
	"github.com/jmmontanana/phantom-monitoring-client/model"
	"github.com/jmmontanana/phantom-monitoring-client/publisher"
	"github.com/jmmontanana/phantom-monitoring-client/registry"
)

// Scheduler runs one goroutine per active plugin plus one configuration
// watcher, matching startThreads()/entryThreads() in
// original_source/src/agent/thread_handler.c: N+1 threads, where the
// +1 is the configuration poller (checkConf there, watchConfig here).
type Scheduler struct {
	reg    *registry.Registry
	store  *config.Store
	client *publisher.Client
	ctx    model.ExperimentContext

	bulkSize       int32 // atomic; may be updated on reload
	metricsURL     string
	updateInterval time.Duration
	configPath     string

	running  int32 // atomic bool: 1 while workers should keep sampling
	wg       sync.WaitGroup
	reloadCh chan struct{}
}

// NewScheduler builds a Scheduler ready to Start.
func NewScheduler(reg *registry.Registry, store *config.Store, client *publisher.Client, ctx model.ExperimentContext, bulkSize int, metricsURL string, updateInterval time.Duration, configPath string) *Scheduler {
	return &Scheduler{
		reg:            reg,
		store:          store,
		client:         client,
		ctx:            ctx,
		bulkSize:       int32(bulkSize),
		metricsURL:     metricsURL,
		updateInterval: updateInterval,
		configPath:     configPath,
		reloadCh:       make(chan struct{}, 1),
	}
}

// Start launches a worker goroutine per plugin and the configuration
// watcher, then returns immediately; call Stop to request a clean exit.
func (s *Scheduler) Start() {
	atomic.StoreInt32(&s.running, 1)

	for i := 0; i < s.reg.Count(); i++ {
		s.wg.Add(1)
		go s.runWorker(i)
	}

	s.wg.Add(1)
	go s.watchConfig()
	watchConfigFile(s.configPath, s.reloadCh)

	log.Infof("scheduler: started %d plugin workers", s.reg.Count())
}

// Stop signals every worker and the watcher to exit after their current
// iteration, matching catcher()'s running=0 in the original agent, then
// blocks until they have all joined.
func (s *Scheduler) Stop() {
	atomic.StoreInt32(&s.running, 0)
	// Wake the watcher so it sees running == 0 without waiting out
	// updateInterval; an already pending reload wakes it just as well.
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
	s.wg.Wait()
	s.reg.Shutdown()
}

func (s *Scheduler) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Scheduler) bulk() int {
	return int(atomic.LoadInt32(&s.bulkSize))
}

// watchConfig reparses the configuration file on UpdateInterval and pushes
// any changed per-plugin cadence into the registry, matching checkConf()'s
// reload-then-resleep loop.
func (s *Scheduler) watchConfig() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()

	for s.isRunning() {
		select {
		case <-ticker.C:
		case <-s.reloadCh:
		}
		if !s.isRunning() {
			return
		}
		if err := s.store.Reload(); err != nil {
			log.Warnf("scheduler: configuration reload failed, keeping previous snapshot: %v", err)
			continue
		}
		s.applyReloadedCadences()
	}
}

func (s *Scheduler) applyReloadedCadences() {
	file := s.store.Snapshot()
	for i := 0; i < s.reg.Count(); i++ {
		name := s.reg.Name(i)
		current := time.Duration(s.reg.Cadence(i))
		cadence := config.PluginCadence(file, name, current)
		if cadence != current {
			log.Infof("scheduler: plugin %s cadence changed %s -> %s", name, current, cadence)
			s.reg.SetCadence(i, int64(cadence))
		}
	}
	if v, ok := file.Get("generic", "bulk_size"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && int32(n) != atomic.LoadInt32(&s.bulkSize) {
			log.Infof("scheduler: bulk_size changed %d -> %d", s.bulk(), n)
			atomic.StoreInt32(&s.bulkSize, int32(n))
		}
	}
}

// runWorker is one plugin's sampling loop, matching gatherMetric(): sample,
// sleep for the plugin's cadence, append to the batch; publish once
// bulk_size fragments have accumulated. The sleep happens between the hook
// call and the append, exactly as in gatherMetric, so the first sample
// fires immediately on worker start.
func (s *Scheduler) runWorker(i int) {
	defer s.wg.Done()

	name := s.reg.Name(i)
	prefix := s.ctx.StaticPrefix()
	batch := model.NewBatch(prefix)

	log.Infof("scheduler: worker for plugin %s started", name)

	for s.isRunning() {
		fragment, err := s.reg.Hook(i)
		cadence := time.Duration(s.reg.Cadence(i))
		if cadence > 0 {
			time.Sleep(cadence)
		}
		if err != nil {
			metrics.SampleErrorsTotal.WithLabelValues(name).Inc()
			log.Warnf("scheduler: plugin %s sample failed, skipping: %v", name, err)
			continue
		}
		metrics.SamplesTotal.WithLabelValues(name).Inc()

		batch.Add(fragment)
		if batch.Len() < s.bulk() {
			continue
		}

		payload := batch.JSON()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		start := time.Now()
		err = s.client.PublishJSON(ctx, s.metricsURL, payload)
		metrics.BatchDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PublishFailuresTotal.WithLabelValues(name).Inc()
			log.Warnf("scheduler: publish failed for plugin %s, dropping batch: %v", name, err)
		}
		cancel()
	}

	log.Infof("scheduler: worker for plugin %s exiting", name)
}
