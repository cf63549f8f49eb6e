package resources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmmontanana/phantom-monitoring-client/model"
)

func writeProcFixture(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc", "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "stat"),
		[]byte("cpu  100 0 50 850 0 0 0 0 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "meminfo"),
		[]byte("MemTotal:       1000 kB\nMemFree:         250 kB\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "net", "dev"),
		[]byte("Inter-|   Receive                                                |  Transmit\n"+
			" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n"+
			"    lo:    0       0    0    0    0     0          0         0        0       0    0    0    0     0       0          0\n"+
			"  eth0: 2000       0    0    0    0     0          0         0     1000       0    0    0    0     0       0          0\n"), 0o644))
}

func TestInitFailsWhenNoRequestedEventSupported(t *testing.T) {
	s := New()
	var buf model.SampleBuffer
	err := s.Init(&buf, []string{"not_a_real_event"})
	assert.Error(t, err)
}

func TestInitAndSampleCPUAndRAM(t *testing.T) {
	root := t.TempDir()
	writeProcFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{cpuUsageRate, ramUsageRate}))
	assert.Equal(t, 2, buf.NumEvents())

	require.NoError(t, s.Sample(&buf))
	// CPU_usage_rate = (1000-850)*100/1000 = 15
	assert.InDelta(t, 15.0, buf.Value(0), 0.001)
	// RAM_usage_rate = (1000-250)*100/1000 = 75
	assert.InDelta(t, 75.0, buf.Value(1), 0.001)
}

func TestEventNamesStableAcrossSamples(t *testing.T) {
	root := t.TempDir()
	writeProcFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{cpuUsageRate, netThroughput}))
	name0 := buf.EventName(0)
	name1 := buf.EventName(1)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Sample(&buf))
		assert.Equal(t, name0, buf.EventName(0))
		assert.Equal(t, name1, buf.EventName(1))
	}
}

func TestNetThroughputZeroWhenNoMatchingInterfaces(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc", "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "net", "dev"),
		[]byte("Inter-|   Receive\n face |bytes\n    lo:    0       0\n"), 0o644))

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{netThroughput}))
	time.Sleep(time.Millisecond)
	require.NoError(t, s.Sample(&buf))
	assert.Equal(t, float32(0), buf.Value(0))
}

func TestIOThroughputIsPlaceholder(t *testing.T) {
	root := t.TempDir()
	writeProcFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{ioThroughput}))
	require.NoError(t, s.Sample(&buf))
	assert.Equal(t, float32(-1), buf.Value(0))
}

func TestToJSONFiltersToRequestedEvents(t *testing.T) {
	root := t.TempDir()
	writeProcFixture(t, root)

	s := NewRootedAt(root)
	var buf model.SampleBuffer
	require.NoError(t, s.Init(&buf, []string{cpuUsageRate, ramUsageRate}))
	require.NoError(t, s.Sample(&buf))

	json := s.ToJSON(&buf, []string{cpuUsageRate})
	assert.Contains(t, json, `"plugin":"Linux_resources"`)
	assert.Contains(t, json, `"CPU_usage_rate"`)
	assert.NotContains(t, json, `"RAM_usage_rate"`)
}
