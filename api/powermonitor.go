package api

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fragment field names for the "power" metric file.
const (
	totalCPUPower   = "total_CPU_power"
	processCPUPower = "process_CPU_power"
)

// maxCPUPowerWatts/minCPUPowerWatts are the same laptop-specific
// calibration constants power_monitor.c hardcodes (24.5W at 2GHz, 6W at
// 800MHz) — a per-deployment calibration the original never made
// configurable either; kept as-is rather than invented anew.
const (
	maxCPUPowerWatts = 24.5
	minCPUPowerWatts = 6.0
)

type cpuInfo struct {
	sysItv     uint64
	sysRuntime uint64
	pidRuntime uint64
}

// runPowerMonitor estimates the instrumented process's share of system CPU
// power over each interval, matching power_monitor()'s before/after
// cpu_info_read + cpu_freq_stat pairing: a system-wide power figure
// (total_CPU_power) derived from CPU frequency-residency deltas, and a
// process-scoped figure (process_CPU_power) proportional to the pid's
// share of total system CPU runtime during the interval.
func runPowerMonitor(s *Session, f *os.File, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	pid := os.Getpid()
	freqState := make(map[string]uint64)

	before, err := readCPUInfo(s.root, pid)
	if err != nil {
		return
	}
	cpuFreqStat(s.root, freqState) // prime the frequency-residency baseline

	for s.isRunning() {
		beforeAt := time.Now()
		time.Sleep(interval)

		after, err := readCPUInfo(s.root, pid)
		if err != nil {
			continue
		}
		sysEnergy := cpuFreqStat(s.root, freqState) // joules consumed by CPU frequency residency since the last call
		duration := time.Since(beforeAt).Seconds()

		if sysEnergy <= 0 || duration <= 0 {
			before = after
			continue
		}

		itvDelta := after.sysItv - before.sysItv
		runtimeDelta := after.sysRuntime - before.sysRuntime
		if itvDelta == 0 {
			before = after
			continue
		}

		sysPowerMW := sysEnergy * float64(runtimeDelta) * 100 * 1.0e3 / (float64(itvDelta) * duration)

		var pidPowerMW float64
		if runtimeDelta > 0 {
			pidDelta := after.pidRuntime - before.pidRuntime
			pidPowerMW = sysPowerMW * float64(pidDelta) * 100 / float64(runtimeDelta)
		}

		fragment := fmt.Sprintf(`"plugin":"%s","@timestamp":"%.4f","%s":%.3f,"%s":%.3f`,
			MetricPower, float64(time.Now().UnixNano())/1e9, totalCPUPower, sysPowerMW, processCPUPower, pidPowerMW)
		writeLine(f, fragment)

		before = after
	}
}

// readCPUInfo reads the process's accumulated CPU runtime from
// /proc/[pid]/stat and the system-wide CPU totals from /proc/stat,
// matching cpu_info_read.
func readCPUInfo(root string, pid int) (cpuInfo, error) {
	pidRuntime, err := readPidRuntime(root, pid)
	if err != nil {
		return cpuInfo{}, err
	}
	sysItv, sysRuntime, err := readSystemCPUTotals(root)
	if err != nil {
		return cpuInfo{}, err
	}
	return cpuInfo{sysItv: sysItv, sysRuntime: sysRuntime, pidRuntime: pidRuntime}, nil
}

// readPidRuntime reads utime+stime (fields 14 and 15 of /proc/[pid]/stat)
// for pid, matching cpu_info_read's pid_utime/pid_stime extraction.
func readPidRuntime(root string, pid int) (uint64, error) {
	data, err := os.ReadFile(rootPath(root, fmt.Sprintf("/proc/%d/stat", pid)))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 15 {
		return 0, fmt.Errorf("api: unexpected /proc/%d/stat layout", pid)
	}
	utime, _ := strconv.ParseUint(fields[13], 10, 64)
	stime, _ := strconv.ParseUint(fields[14], 10, 64)
	return utime + stime, nil
}

// readSystemCPUTotals reads the aggregate "cpu" line of /proc/stat,
// matching cpu_info_read's sys_itv (sum of all eight fields) and
// sys_runtime (user+sys) computation.
func readSystemCPUTotals(root string) (itv, runtime uint64, err error) {
	f, err := os.Open(rootPath(root, "/proc/stat"))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("api: /proc/stat is empty")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("api: unexpected /proc/stat layout")
	}

	var values [8]uint64
	for i := 0; i < 8; i++ {
		values[i], _ = strconv.ParseUint(fields[i+1], 10, 64)
	}
	user, nice, sys, idle, iowait, hardirq, softirq, steal := values[0], values[1], values[2], values[3], values[4], values[5], values[6], values[7]
	itv = user + nice + sys + idle + iowait + hardirq + softirq + steal
	runtime = user + sys
	return itv, runtime, nil
}

// cpuFreqStat reads every CPU's cpufreq time_in_state file and returns the
// estimated joules consumed since the previous call, matching
// cpu_freq_stat's linear-interpolation-by-frequency-index model: each
// frequency level i (0 = highest, max_i = lowest) is assigned a power
// between maxCPUPowerWatts and minCPUPowerWatts by linear interpolation,
// and multiplied by the residency time accrued at that level since the
// last call (time_in_state units are 10ms). Returns 0 if the host exposes
// no cpufreq stats, matching the original's "system doesn't support this"
// fallback. state carries the previous call's per-level tick counts,
// owned by one runPowerMonitor goroutine.
func cpuFreqStat(root string, state map[string]uint64) float64 {
	dirs, err := filepath.Glob(rootPath(root, "/sys/devices/system/cpu/cpu[0-9]*/cpufreq/stats/time_in_state"))
	if err != nil || len(dirs) == 0 {
		return 0
	}
	sort.Strings(dirs)

	// The original overwrites its single residency table once per CPU
	// directory in readdir order, so only the last directory read
	// contributes to the returned energy figure — an inherited quirk,
	// not a deliberate aggregate-across-CPUs design.
	path := dirs[len(dirs)-1]

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	powerRange := maxCPUPowerWatts - minCPUPowerWatts
	var energyTotal float64
	var i int
	scanner := bufio.NewScanner(f)
	current := make(map[int]uint64)
	for scanner.Scan() && i < 16 {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		ticks, _ := strconv.ParseUint(fields[1], 10, 64)
		current[i] = ticks
		i++
	}
	maxI := i - 1
	if maxI < 0 {
		return 0
	}

	for idx := 0; idx <= maxI; idx++ {
		key := stateKey(path, idx)
		delta := current[idx]
		if prev, ok := state[key]; ok {
			if current[idx] >= prev {
				delta = current[idx] - prev
			} else {
				delta = 0
			}
		}
		state[key] = current[idx]
		if delta == 0 {
			continue
		}
		power := maxCPUPowerWatts
		if maxI > 0 {
			power -= powerRange * float64(idx) / float64(maxI)
		}
		energyTotal += power * float64(delta) / 100.0 // 10ms ticks -> seconds, watts -> joules
	}
	return energyTotal
}

func stateKey(path string, idx int) string {
	return fmt.Sprintf("%s#%d", path, idx)
}
