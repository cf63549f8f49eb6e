// Package resources implements the Linux_resources plugin: CPU, RAM and
// network utilization read from /proc, grounded on
// original_source/src/plugins/Linux_resources/src/mf_Linux_resources_connector.c.
package resources

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// Name is this plugin's identity in the registry and in configuration.
const Name = "Linux_resources"

const (
	cpuUsageRate   = "CPU_usage_rate"
	ramUsageRate   = "RAM_usage_rate"
	netThroughput  = "net_throughput"
	ioThroughput   = "io_throughput"
	cpuStatFile    = "/proc/stat"
	ramStatFile    = "/proc/meminfo"
	netStatFile    = "/proc/net/dev"
)

var supportedEvents = []string{cpuUsageRate, ramUsageRate, netThroughput, ioThroughput}

type netStats struct {
	rcvBytes, sndBytes uint64
}

// Sampler implements registry.Sampler for Linux resource utilization.
type Sampler struct {
	root string // filesystem root, overridable in tests

	hasCPU, hasRAM, hasNet, hasIO bool

	beforeTime time.Time
	netBefore  netStats
}

// New returns a Sampler rooted at "/", the real /proc hierarchy.
func New() *Sampler {
	return &Sampler{root: "/"}
}

// NewRootedAt returns a Sampler that reads /proc-shaped files from under
// root instead of "/", for tests.
func NewRootedAt(root string) *Sampler {
	return &Sampler{root: root}
}

func (s *Sampler) path(p string) string {
	if s.root == "/" || s.root == "" {
		return p
	}
	return strings.TrimRight(s.root, "/") + p
}

// Init validates the requested events and captures baseline counters.
func (s *Sampler) Init(buf *model.SampleBuffer, requestedEvents []string) error {
	var supported []string
	for _, ev := range requestedEvents {
		switch ev {
		case cpuUsageRate:
			s.hasCPU = true
			supported = append(supported, cpuUsageRate)
		case ramUsageRate:
			s.hasRAM = true
			supported = append(supported, ramUsageRate)
		case netThroughput:
			s.hasNet = true
			supported = append(supported, netThroughput)
		case ioThroughput:
			s.hasIO = true
			supported = append(supported, ioThroughput)
		}
	}
	if len(supported) == 0 {
		return fmt.Errorf("%w: none of %v are supported by %s (want one of %v)",
			mferrors.ErrUnsupportedEvent, requestedEvents, Name, supportedEvents)
	}

	buf.Init(supported)

	if s.hasNet {
		ns, err := s.readNetStats()
		if err != nil {
			return fmt.Errorf("%w: %v", mferrors.ErrCounterUnavailable, err)
		}
		s.netBefore = ns
	}

	s.beforeTime = time.Now()
	return nil
}

// Sample computes this window's CPU/RAM/net values.
func (s *Sampler) Sample(buf *model.SampleBuffer) error {
	after := time.Now()
	interval := after.Sub(s.beforeTime).Seconds()

	for i := 0; i < buf.NumEvents(); i++ {
		switch buf.EventName(i) {
		case cpuUsageRate:
			v, err := s.cpuUsageRate()
			if err != nil {
				return fmt.Errorf("%w: %v", mferrors.ErrSampleReadFailed, err)
			}
			buf.SetValue(i, v)
		case ramUsageRate:
			v, err := s.ramUsageRate()
			if err != nil {
				return fmt.Errorf("%w: %v", mferrors.ErrSampleReadFailed, err)
			}
			buf.SetValue(i, v)
		case netThroughput:
			ns, err := s.readNetStats()
			if err != nil {
				return fmt.Errorf("%w: %v", mferrors.ErrSampleReadFailed, err)
			}
			totalBytes := (ns.rcvBytes - s.netBefore.rcvBytes) + (ns.sndBytes - s.netBefore.sndBytes)
			if interval > 0 {
				buf.SetValue(i, float32(float64(totalBytes)/interval))
			} else {
				buf.SetValue(i, 0)
			}
			s.netBefore = ns
		case ioThroughput:
			// unimplemented in the original connector: reported as -1.
			buf.SetValue(i, -1)
		}
	}

	s.beforeTime = after
	return nil
}

// ToJSON writes the plugin's fragment, filtering to the requested events.
func (s *Sampler) ToJSON(buf *model.SampleBuffer, requestedEvents []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`"plugin":"%s"`, Name))
	b.WriteString(fmt.Sprintf(`,"@timestamp":"%.4f"`, float64(time.Now().UnixNano())/1e9))

	wanted := make(map[string]bool, len(requestedEvents))
	for _, e := range requestedEvents {
		wanted[e] = true
	}
	for i := 0; i < buf.NumEvents(); i++ {
		name := buf.EventName(i)
		if !wanted[name] {
			continue
		}
		fmt.Fprintf(&b, `,"%s":%.3f`, name, buf.Value(i))
	}
	return b.String()
}

// Shutdown releases no resources; the sampler only reads /proc on demand.
func (s *Sampler) Shutdown() {}

func (s *Sampler) cpuUsageRate() (float32, error) {
	f, err := os.Open(s.path(cpuStatFile))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("empty %s", cpuStatFile)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 {
		return 0, fmt.Errorf("unexpected %s format", cpuStatFile)
	}
	var sum, idle uint64
	for i, col := range fields[1:9] {
		v, err := strconv.ParseUint(col, 10, 64)
		if err != nil {
			return 0, err
		}
		sum += v
		if i == 3 || i == 4 { // idle, iowait
			idle += v
		}
	}
	if sum == 0 {
		return 0, nil
	}
	return float32(float64(sum-idle) * 100.0 / float64(sum)), nil
}

func (s *Sampler) ramUsageRate() (float32, error) {
	f, err := os.Open(s.path(ramStatFile))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, free uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoLine(line)
		case strings.HasPrefix(line, "MemFree:"):
			free = parseMeminfoLine(line)
		}
		if total != 0 && free != 0 {
			break
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float32(float64(total-free) * 100.0 / float64(total)), nil
}

func parseMeminfoLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}

func (s *Sampler) readNetStats() (netStats, error) {
	f, err := os.Open(s.path(netStatFile))
	if err != nil {
		return netStats{}, err
	}
	defer f.Close()

	var ns netStats
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		iface := strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
		if !strings.HasPrefix(iface, "eth") && !strings.HasPrefix(iface, "wlan") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		rcv, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		snd, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			continue
		}
		ns.rcvBytes += rcv
		ns.sndBytes += snd
	}
	return ns, nil
}
