//go:build !linux

package cpuperf

// NewPerfEventReader is unavailable outside Linux; perf_event_open has no
// equivalent elsewhere and every CPU_perf/CPU_FF_perf deployment target is
// Linux per the rest of this agent's plugins.
func NewPerfEventReader() CounterReader {
	return unavailableReader{}
}

type unavailableReader struct{}

func (unavailableReader) Available() bool { return false }

func (unavailableReader) Read() (flpIns, flpOps, totIns int64, flpInsOK, flpOpsOK, totInsOK bool, err error) {
	return 0, 0, 0, false, false, false, nil
}

func (unavailableReader) Close() error { return nil }
