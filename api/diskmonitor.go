package api

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func rootPath(root, p string) string {
	if root == "/" || root == "" {
		return p
	}
	return strings.TrimRight(root, "/") + p
}

// MetricDisk's fragment field names.
const (
	diskReadRate  = "read_bytes_rate"
	diskWriteRate = "write_bytes_rate"
)

// runDiskMonitor samples the current process's own /proc/[pid]/io counters
// on interval, writing one fragment per sample — the embedded-library
// analogue of disk_monitor(pid, DataPath, sampling_interval), rebuilt
// against /proc/[pid]/io since disk_monitor.c's body was never retrieved.
func runDiskMonitor(s *Session, f *os.File, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	pid := os.Getpid()

	before, err := readProcIO(s.root, pid)
	if err != nil {
		return
	}
	beforeAt := time.Now()

	for s.isRunning() {
		time.Sleep(interval)

		after, err := readProcIO(s.root, pid)
		now := time.Now()
		if err != nil {
			beforeAt = now
			continue
		}

		elapsed := now.Sub(beforeAt).Seconds()
		if elapsed <= 0 {
			before, beforeAt = after, now
			continue
		}

		readRate := float64(after.readBytes-before.readBytes) / elapsed
		writeRate := float64(after.writeBytes-before.writeBytes) / elapsed

		fragment := fmt.Sprintf(`"plugin":"%s","@timestamp":"%.4f","%s":%.3f,"%s":%.3f`,
			MetricDisk, float64(now.UnixNano())/1e9, diskReadRate, readRate, diskWriteRate, writeRate)
		writeLine(f, fragment)

		before, beforeAt = after, now
	}
}

type procIOCounters struct {
	readBytes, writeBytes uint64
}

// readProcIO reads read_bytes/write_bytes from /proc/[pid]/io, the same
// per-process counters plugins/syspower sums system-wide in
// readSystemIOStats, here scoped to a single pid.
func readProcIO(root string, pid int) (procIOCounters, error) {
	f, err := os.Open(rootPath(root, fmt.Sprintf("/proc/%d/io", pid)))
	if err != nil {
		return procIOCounters{}, err
	}
	defer f.Close()

	var c procIOCounters
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "read_bytes":
			c.readBytes, _ = strconv.ParseUint(fields[1], 10, 64)
		case "write_bytes":
			c.writeBytes, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return c, scanner.Err()
}
