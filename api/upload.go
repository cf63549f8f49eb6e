package api

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/publisher"
)

// uploadFile reads every sample line a monitor goroutine appended to path,
// wraps each in the per-file static prefix (WorkflowID/TaskID/
// ExperimentID/type/host — the same fields mf_send's static_string
// builds), and publishes the whole file as one JSON array, mirroring
// publish_file's per-entry upload loop.
func uploadFile(client *publisher.Client, metricURL, staticPrefix, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", mferrors.ErrPublishFailed, err)
	}
	defer f.Close()

	var objects []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		objects = append(objects, "{"+staticPrefix+","+line+"}")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", mferrors.ErrPublishFailed, err)
	}
	if len(objects) == 0 {
		return nil
	}

	body := "[" + strings.Join(objects, ",") + "]"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return client.PublishJSON(ctx, metricURL, body)
}
