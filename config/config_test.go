package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gopkg.in/ini.v1"
)

func TestGetStrArray(t *testing.T) {
	assert := assert.New(t)
	f, _ := ini.Load([]byte("[Main]\n\nports = 10,15,20,25"))
	conf := File{
		f,
		"some/path",
	}

	ports, err := conf.GetStrArray("Main", "ports", ",")
	assert.Nil(err)
	assert.Equal(ports, []string{"10", "15", "20", "25"})
}

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)
	agentConfig := NewDefaultAgentConfig()

	assert.Equal("http://localhost:3030", agentConfig.ServerURL)
	assert.Equal("localhost", agentConfig.PlatformID)
	assert.Equal(10, agentConfig.BulkSize)
	assert.Equal(time.Second, agentConfig.DefaultCadence)
	assert.Equal(30*time.Second, agentConfig.UpdateInterval)
	assert.Equal("infrastructure", agentConfig.ApplicationID)
}

func TestAgentConfigFromFile(t *testing.T) {
	assert := assert.New(t)

	f, _ := ini.Load([]byte(`
[generic]
server = http://metrics.example.com
platform_id = node-07
bulk_size = 5

[timings]
default = 500000000
update_configuration = 10
`))
	conf := &File{instance: f, Path: "whatever"}

	agentConfig, err := NewAgentConfig(conf)
	assert.Nil(err)
	assert.Equal("http://metrics.example.com", agentConfig.ServerURL)
	assert.Equal("node-07", agentConfig.PlatformID)
	assert.Equal(5, agentConfig.BulkSize)
	assert.Equal(500*time.Millisecond, agentConfig.DefaultCadence)
	assert.Equal(10*time.Second, agentConfig.UpdateInterval)
	assert.Equal("node-07", agentConfig.TaskID)
}

func TestAgentConfigMissingFieldsFallBackToDefaults(t *testing.T) {
	assert := assert.New(t)

	f, _ := ini.Load([]byte("[generic]\nplatform_id = only-this\n"))
	conf := &File{instance: f, Path: "whatever"}

	defaultConfig := NewDefaultAgentConfig()
	agentConfig, _ := NewAgentConfig(conf)

	assert.Equal(defaultConfig.BulkSize, agentConfig.BulkSize)
	assert.Equal(defaultConfig.ServerURL, agentConfig.ServerURL)
	assert.Equal("only-this", agentConfig.PlatformID)
}

func TestPluginCadenceFallsBackToDefault(t *testing.T) {
	assert := assert.New(t)

	f, _ := ini.Load([]byte("[timings]\nLinux_resources = 200000000\n"))
	conf := &File{instance: f, Path: "whatever"}

	assert.Equal(200*time.Millisecond, PluginCadence(conf, "Linux_resources", time.Second))
	assert.Equal(time.Second, PluginCadence(conf, "CPU_perf", time.Second))
}

func TestPluginEventsSplitsOnComma(t *testing.T) {
	assert := assert.New(t)

	f, _ := ini.Load([]byte("[plugins]\nLinux_resources = CPU_usage_rate, RAM_usage_rate\n"))
	conf := &File{instance: f, Path: "whatever"}

	assert.Equal([]string{"CPU_usage_rate", "RAM_usage_rate"}, PluginEvents(conf, "Linux_resources"))
	assert.Nil(PluginEvents(conf, "CPU_perf"))
}

func TestStoreReload(t *testing.T) {
	assert := assert.New(t)

	path := writeTempINI(t, "[generic]\nplatform_id = before\n")
	store, err := NewStore(path)
	assert.Nil(err)

	v, ok := store.Get("generic", "platform_id")
	assert.True(ok)
	assert.Equal("before", v)

	overwriteFile(t, path, "[generic]\nplatform_id = after\n")
	assert.Nil(store.Reload())

	v, ok = store.Get("generic", "platform_id")
	assert.True(ok)
	assert.Equal("after", v)
}
