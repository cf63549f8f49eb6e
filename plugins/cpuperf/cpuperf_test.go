package cpuperf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// fakeReader gives a scripted sequence of counter readings for deterministic
// rate-over-interval tests.
type fakeReader struct {
	available bool
	readings  []counterReading
	next      int
}

type counterReading struct {
	flpIns, flpOps, totIns                int64
	flpInsOK, flpOpsOK, totInsOK          bool
}

func (f *fakeReader) Available() bool { return f.available }

func (f *fakeReader) Read() (int64, int64, int64, bool, bool, bool, error) {
	r := f.readings[f.next]
	if f.next < len(f.readings)-1 {
		f.next++
	}
	return r.flpIns, r.flpOps, r.totIns, r.flpInsOK, r.flpOpsOK, r.totInsOK, nil
}

func (f *fakeReader) Close() error { return nil }

func TestPerfInitRejectsUnknownEvents(t *testing.T) {
	s := NewPerf(&fakeReader{available: true, readings: []counterReading{{}}})
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{"not_a_real_event"})
	assert.Error(t, err)
}

func TestPerfInitFailsWhenReaderUnavailable(t *testing.T) {
	s := NewPerf(&fakeReader{available: false})
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{mips})
	assert.Error(t, err)
}

func TestPerfMIPSRateOverInterval(t *testing.T) {
	reader := &fakeReader{
		available: true,
		readings: []counterReading{
			{totIns: 1_000_000, totInsOK: true},
			{totIns: 3_000_000, totInsOK: true},
		},
	}
	s := NewPerf(reader)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{mips}))
	require.NoError(t, s.Sample(&buf))
	assert.Greater(t, buf.Value(0), float32(0))
}

func TestFFPerfAcceptsOnlyFlipsFlops(t *testing.T) {
	s := NewFFPerf(&fakeReader{available: true, readings: []counterReading{{}, {}}})
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{flips, flops, mips}))
	assert.Equal(t, 2, buf.NumEvents())
}

func TestToJSONFiltersToRequestedEvents(t *testing.T) {
	reader := &fakeReader{
		available: true,
		readings: []counterReading{
			{totIns: 0, totInsOK: true},
			{totIns: 500_000, totInsOK: true},
		},
	}
	s := NewPerf(reader)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{mips, mflips}))
	require.NoError(t, s.Sample(&buf))

	json := s.ToJSON(&buf, []string{mips})
	assert.Contains(t, json, `"plugin":"CPU_perf"`)
	assert.Contains(t, json, `"MIPS"`)
	assert.NotContains(t, json, `"MFLIPS"`)
}
