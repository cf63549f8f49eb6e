// Package cpuperf implements two related plugins from a single PAPI-free
// counter source: CPU_perf (MFLIPS/MFLOPS/MIPS, rate-over-interval) and the
// supplemented CPU_FF_perf variant (FLIPS/FLOPS, the high-level-helper
// flavor), grounded on
// original_source/src/plugins/CPU_perf/src/mf_CPU_perf_connector.c and
// original_source/src/plugins/CPU_FF_perf/src/mf_CPU_FF_perf_connector.c.
package cpuperf

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// Event names, shared between the CPU_perf (MFLIPS/MFLOPS/MIPS) and
// CPU_FF_perf (FLIPS/FLOPS) flavors.
const (
	mflips = "MFLIPS"
	mflops = "MFLOPS"
	mips   = "MIPS"
	flips  = "FLIPS"
	flops  = "FLOPS"

	// NamePerf and NameFFPerf are the two plugin identities this package
	// serves; Discover wires each to its own factory.
	NamePerf   = "CPU_perf"
	NameFFPerf = "CPU_FF_perf"
)

var perfEvents = []string{mflips, mflops, mips}
var ffPerfEvents = []string{flips, flops}

// CounterReader reads cumulative hardware performance counters. PAPI,
// which the original connector uses to select and read these counters
// portably across CPU models, is an out-of-scope external library
// (spec.md §1); perfEventReader in perfreader.go reads the one counter with a
// generic, model-independent perf_event code (instructions retired)
// directly through the kernel's perf_event_open syscall instead.
// Floating-point instruction/op counters have no generic perf_event
// hardware code (only vendor- and model-specific raw codes, which is
// exactly the abstraction PAPI existed to hide), so FlpIns and FlpOps
// are reported unavailable rather than approximated.
type CounterReader interface {
	// Available reports whether this reader can produce any counter.
	Available() bool
	// Read returns cumulative counts since the counter was opened:
	// floating point instructions, floating point operations, and total
	// instructions retired. Any value may be unavailable; ok reports
	// which are valid via the three returned bools.
	Read() (flpIns, flpOps, totIns int64, flpInsOK, flpOpsOK, totInsOK bool, err error)
	// Close releases the underlying counter resources.
	Close() error
}

// Sampler implements registry.Sampler for both CPU_perf and CPU_FF_perf;
// which flavor it is only changes which event-name set Init will accept
// and which fields ToJSON filters to, not how counters are read.
type Sampler struct {
	plugin string // NamePerf or NameFFPerf, set by the constructor

	reader CounterReader

	hasMflips, hasMflops, hasMips bool
	hasFlips, hasFlops            bool

	beforeTime                     time.Time
	flpInsBefore, flpOpsBefore, totInsBefore int64
}

// NewPerf returns the CPU_perf Sampler (MFLIPS/MFLOPS/MIPS), using reader
// to source hardware counters.
func NewPerf(reader CounterReader) *Sampler {
	return &Sampler{plugin: NamePerf, reader: reader}
}

// NewFFPerf returns the CPU_FF_perf Sampler (FLIPS/FLOPS).
func NewFFPerf(reader CounterReader) *Sampler {
	return &Sampler{plugin: NameFFPerf, reader: reader}
}

func (s *Sampler) validEvents() []string {
	if s.plugin == NameFFPerf {
		return ffPerfEvents
	}
	return perfEvents
}

// Init validates the requested events and opens the counter reader.
func (s *Sampler) Init(buf *model.SampleBuffer, requestedEvents []string) error {
	valid := make(map[string]bool, len(s.validEvents()))
	for _, e := range s.validEvents() {
		valid[e] = true
	}

	var supported []string
	for _, ev := range requestedEvents {
		if !valid[ev] {
			continue
		}
		switch ev {
		case mflips:
			s.hasMflips = true
		case mflops:
			s.hasMflops = true
		case mips:
			s.hasMips = true
		case flips:
			s.hasFlips = true
		case flops:
			s.hasFlops = true
		}
		supported = append(supported, ev)
	}
	if len(supported) == 0 {
		return fmt.Errorf("%w: none of %v are supported by %s (want one of %v)",
			mferrors.ErrUnsupportedEvent, requestedEvents, s.plugin, s.validEvents())
	}
	buf.Init(supported)

	if s.reader == nil || !s.reader.Available() {
		return fmt.Errorf("%w: %s: no hardware counter reader available", mferrors.ErrPluginInitFailed, s.plugin)
	}

	_, _, totIns, _, _, totInsOK, err := s.reader.Read()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", mferrors.ErrCounterUnavailable, s.plugin, err)
	}
	if totInsOK {
		s.totInsBefore = totIns
	}
	s.beforeTime = time.Now()
	return nil
}

// Sample computes this window's rates, in millions per second, matching
// the original's count*1e3/duration_ns scaling.
func (s *Sampler) Sample(buf *model.SampleBuffer) error {
	after := time.Now()
	durationNS := after.Sub(s.beforeTime).Nanoseconds()
	if durationNS <= 0 {
		durationNS = 1
	}

	flpIns, flpOps, totIns, flpInsOK, flpOpsOK, totInsOK, err := s.reader.Read()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", mferrors.ErrSampleReadFailed, s.plugin, err)
	}

	var mflipsVal, mflopsVal, mipsVal float32
	if flpInsOK {
		mflipsVal = rate(flpIns-s.flpInsBefore, durationNS)
		s.flpInsBefore = flpIns
	}
	if flpOpsOK {
		mflopsVal = rate(flpOps-s.flpOpsBefore, durationNS)
		s.flpOpsBefore = flpOps
	}
	if totInsOK {
		mipsVal = rate(totIns-s.totInsBefore, durationNS)
		s.totInsBefore = totIns
	}

	for i := 0; i < buf.NumEvents(); i++ {
		switch buf.EventName(i) {
		case mflips, flips:
			buf.SetValue(i, mflipsVal)
		case mflops, flops:
			buf.SetValue(i, mflopsVal)
		case mips:
			buf.SetValue(i, mipsVal)
		}
	}

	s.beforeTime = after
	return nil
}

func rate(delta, durationNS int64) float32 {
	if delta < 0 {
		return 0
	}
	return float32(float64(delta) * 1.0e3 / float64(durationNS))
}

// ToJSON writes the plugin's fragment, filtering to the requested events.
func (s *Sampler) ToJSON(buf *model.SampleBuffer, requestedEvents []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`"plugin":"%s"`, s.plugin))
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

// Shutdown closes the underlying counter reader.
func (s *Sampler) Shutdown() {
	if s.reader != nil {
		s.reader.Close()
	}
}
