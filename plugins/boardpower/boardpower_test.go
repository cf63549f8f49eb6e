package boardpower

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmmontanana/phantom-monitoring-client/model"
)

type fakeReader struct {
	available bool
	watts     float64
	err       error
}

func (f *fakeReader) Available() bool { return f.available }

func (f *fakeReader) ReadWatts() (float64, error) { return f.watts, f.err }

func TestInitFailsWithNilReader(t *testing.T) {
	s := New(nil)
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{boardPower})
	assert.Error(t, err)
}

func TestInitFailsWhenReaderUnavailable(t *testing.T) {
	s := New(&fakeReader{available: false})
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{boardPower})
	assert.Error(t, err)
}

func TestInitFailsWhenNoRequestedEventSupported(t *testing.T) {
	s := New(&fakeReader{available: true})
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{"not_a_real_event"})
	assert.Error(t, err)
}

func TestSampleReadsWatts(t *testing.T) {
	s := New(&fakeReader{available: true, watts: 42.5})
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{boardPower}))
	require.NoError(t, s.Sample(&buf))
	assert.InDelta(t, 42.5, buf.Value(0), 0.001)
}

func TestSamplePropagatesReaderError(t *testing.T) {
	s := New(&fakeReader{available: true, err: errors.New("sensor gone")})
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{boardPower}))
	assert.Error(t, s.Sample(&buf))
}

func TestToJSON(t *testing.T) {
	s := New(&fakeReader{available: true, watts: 10})
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{boardPower}))
	require.NoError(t, s.Sample(&buf))
	json := s.ToJSON(&buf, []string{boardPower})
	assert.Contains(t, json, `"plugin":"Board_power"`)
	assert.Contains(t, json, `"board_power"`)
}
