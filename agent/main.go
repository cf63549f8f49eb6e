package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/cihub/seelog"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/jmmontanana/phantom-monitoring-client/config"
	"github.com/jmmontanana/phantom-monitoring-client/metrics"
	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/boardpower"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/cpuperf"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/resources"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/syspower"
	"github.com/jmmontanana/phantom-monitoring-client/publisher"
	"github.com/jmmontanana/phantom-monitoring-client/registry"
)

// factories is the static registry of every plugin this agent knows how
// to run, selected by the [plugins] section of the configuration file.
// This replaces the original agent's dlopen scan over a plugins/
// directory (plugin_discover.c) with a static table, per spec.md §9's
// note that configuration-driven selection satisfies the same contract.
func factories() map[string]registry.Factory {
	return map[string]registry.Factory{
		resources.Name: func() registry.Sampler { return resources.New() },
		syspower.Name:  func() registry.Sampler { return syspower.New() },
		cpuperf.NamePerf: func() registry.Sampler {
			return cpuperf.NewPerf(cpuperf.NewPerfEventReader())
		},
		cpuperf.NameFFPerf: func() registry.Sampler {
			return cpuperf.NewFFPerf(cpuperf.NewPerfEventReader())
		},
		// Board_power has no portable production sensor (see
		// plugins/boardpower's package doc); wired with a nil Reader so
		// it is always skipped by Discover unless a deployment-specific
		// build substitutes a real one here.
		boardpower.Name: func() registry.Sampler { return boardpower.New(nil) },
	}
}

func main() {
	var applicationID, taskID, configPath, metricsAddr string
	var help bool
	flag.StringVarP(&applicationID, "application", "a", "", "application id (defaults to \"infrastructure\")")
	flag.StringVarP(&taskID, "task", "t", "", "task id (defaults to the platform id)")
	flag.StringVarP(&configPath, "config", "c", "mf_config.ini", "path to the agent configuration file")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9110", "address to expose internal /metrics on")
	flag.BoolVarP(&help, "help", "h", false, "print usage and exit")
	flag.Parse()

	if help {
		flag.Usage()
		return
	}

	logger, err := newFileLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create log file: %v\n", err)
		os.Exit(1)
	}
	log.ReplaceLogger(logger)
	defer log.Flush()
	log.Infof("starting agent run %s", uniqueRunID())

	if err := writePIDFile("tmp_pid"); err != nil {
		log.Errorf("could not write PID file: %v", err)
		log.Flush()
		os.Exit(1)
	}
	defer os.Remove("tmp_pid")

	store, err := config.NewStore(configPath)
	if err != nil {
		log.Errorf("%v", fmt.Errorf("%w: %v", mferrors.ErrConfigMissing, err))
		log.Flush()
		os.Exit(1)
	}

	agentConf, err := config.NewAgentConfig(store.Snapshot())
	if err != nil {
		log.Errorf("could not build agent configuration: %v", err)
		log.Flush()
		os.Exit(1)
	}
	if applicationID != "" {
		agentConf.ApplicationID = applicationID
	}
	if taskID != "" {
		agentConf.TaskID = taskID
	}

	log.Infof("application_id: %s", agentConf.ApplicationID)
	log.Infof("task_id: %s", agentConf.TaskID)
	log.Infof("platform_id: %s", agentConf.PlatformID)

	client := publisher.New(10 * time.Second)

	expCtx, err := prepareExperiment(client, agentConf)
	if err != nil {
		log.Errorf("could not prepare experiment: %v", err)
		log.Flush()
		os.Exit(1)
	}
	log.Infof("experiment_id: %s", expCtx.ExperimentID)

	reg := registry.Discover(store.Snapshot(), factories(), agentConf.DefaultCadence)
	if reg.Count() == 0 {
		log.Warn("no plugins activated; check the [plugins] section of the configuration")
	}

	metricsServer := metrics.NewServer(metricsAddr)
	metricsServer.Start()
	defer metricsServer.Stop()

	sched := NewScheduler(reg, store, client, expCtx, agentConf.BulkSize,
		publisher.MetricsURL(agentConf.ServerURL), agentConf.UpdateInterval, configPath)
	sched.Start()

	waitForShutdownSignal()
	sched.Stop()

	log.Info("exiting")
}

// prepareExperiment creates a new experiment on the server and assembles
// the ExperimentContext every worker embeds in its batch prefix, matching
// prepare() in original_source/src/agent/main.c.
func prepareExperiment(client *publisher.Client, conf *config.AgentConfig) (model.ExperimentContext, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experimentID, err := client.CreateExperiment(ctx, conf.ServerURL, conf.ApplicationID, conf.TaskID, conf.PlatformID)
	if err != nil {
		return model.ExperimentContext{}, err
	}

	return model.ExperimentContext{
		ApplicationID: conf.ApplicationID,
		TaskID:        conf.TaskID,
		ExperimentID:  experimentID,
		HostID:        conf.PlatformID,
	}, nil
}

// writePIDFile writes the running process's PID to name, matching
// writeTmpPID()'s "tmp_pid" file so operators can locate and kill the
// agent the same way.
func writePIDFile(name string) error {
	return os.WriteFile(name, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// newFileLogger builds a seelog logger writing to
// <executable directory>/log/log-<timestamp>, matching createLogFile()'s
// naming in original_source/src/agent/main.c.
func newFileLogger() (log.LoggerInterface, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(filepath.Dir(exe), "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("log-%s", time.Now().Format("2006-01-02-15-04-05")))

	logConfig := fmt.Sprintf(`
<seelog minlevel="info">
	<outputs formatid="main">
		<file path="%s"/>
		<console/>
	</outputs>
	<formats>
		<format id="main" format="%%Date(2006-01-02 15:04:05) [%%Level] %%Msg%%n"/>
	</formats>
</seelog>`, logPath)

	return log.LoggerFromConfigAsString(logConfig)
}

// uniqueRunID is used when an agent run needs a locally-unique identifier
// that does not depend on the server (e.g. correlating local log lines
// across a restart); it is not part of the wire protocol.
func uniqueRunID() string {
	return uuid.NewString()
}
