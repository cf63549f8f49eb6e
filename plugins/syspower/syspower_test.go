package syspower

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// fakeRAPL implements RAPLReader with canned, steppable readings.
type fakeRAPL struct {
	available  bool
	readings   [][2]uint64 // packageUJ, dramUJ
	next       int
}

func (f *fakeRAPL) Available() bool { return f.available }

func (f *fakeRAPL) ReadMicrojoules() (uint64, uint64, error) {
	r := f.readings[f.next]
	if f.next < len(f.readings)-1 {
		f.next++
	}
	return r[0], r[1], nil
}

func writeWlanFixture(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc", "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "net", "dev"),
		[]byte("Inter-|   Receive\n face |bytes\n"+
			"  eth0: 5000       0    0    0    0     0          0         0     5000       0    0    0    0     0       0          0\n"+
			" wlan0: 2048       0    0    0    0     0          0         0     1024       0    0    0    0     0       0          0\n"), 0o644))
}

func TestInitFailsWhenNoRequestedEventSupported(t *testing.T) {
	s := NewRootedAt(t.TempDir())
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{"not_a_real_event"})
	assert.Error(t, err)
}

func TestPowerNetEnergyOverInterval(t *testing.T) {
	root := t.TempDir()
	writeWlanFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{powerNet}))
	require.NoError(t, s.Sample(&buf))

	// wlan-only: rcv=2048, snd=1024 bytes. Init captures these as the
	// baseline and Sample reads the same fixture again, so the byte delta
	// is zero and power_net is 0.
	assert.InDelta(t, 0, buf.Value(0), 1e9) // just exercises the path without flaking on timing
}

func TestPowerCPUUsesRAPLDelta(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0o755))

	fake := &fakeRAPL{
		available: true,
		readings:  [][2]uint64{{1_000_000, 500_000}, {2_000_000, 600_000}},
	}
	s := NewRootedAt(root).WithRAPLReader(fake)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{powerCPU, powerMem}))
	require.NoError(t, s.Sample(&buf))

	// ecpu = (2_000_000 - 1_000_000) uJ / 1000 = 1000 mJ, over interval.
	assert.Greater(t, buf.Value(0), float32(0))
}

func TestPowerCPUZeroWhenRAPLUnavailable(t *testing.T) {
	root := t.TempDir()
	fake := &fakeRAPL{available: false}
	s := NewRootedAt(root).WithRAPLReader(fake)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{powerCPU}))
	require.NoError(t, s.Sample(&buf))
	assert.Equal(t, float32(0), buf.Value(0))
}

func TestEventNamesStableAcrossSamples(t *testing.T) {
	root := t.TempDir()
	writeWlanFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{powerNet, powerDisk}))
	name0, name1 := buf.EventName(0), buf.EventName(1)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Sample(&buf))
		assert.Equal(t, name0, buf.EventName(0))
		assert.Equal(t, name1, buf.EventName(1))
	}
}

func TestToJSONFiltersToRequestedEvents(t *testing.T) {
	root := t.TempDir()
	writeWlanFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{powerNet, powerDisk}))
	require.NoError(t, s.Sample(&buf))

	json := s.ToJSON(&buf, []string{powerNet})
	assert.Contains(t, json, `"plugin":"Linux_sys_power"`)
	assert.Contains(t, json, `"power_net"`)
	assert.NotContains(t, json, `"power_disk"`)
}
