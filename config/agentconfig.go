package config

import (
	"strconv"
	"time"
)

// AgentConfig is the typed, defaulted view over the raw configuration file,
// built once at startup. Per-plugin cadences are read again by the
// configuration watcher on every reload; this snapshot only carries the
// values needed before the first plugin is discovered.
type AgentConfig struct {
	ServerURL      string
	PlatformID     string
	BulkSize       int
	DefaultCadence time.Duration // timings.default, interpreted as nanoseconds
	UpdateInterval time.Duration // timings.update_configuration, interpreted as seconds

	ApplicationID string
	TaskID        string
}

// NewDefaultAgentConfig returns the agent's built-in defaults, used when no
// configuration file can be read yet (or for fields a file omits).
func NewDefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		ServerURL:      "http://localhost:3030",
		PlatformID:     "localhost",
		BulkSize:       10,
		DefaultCadence: time.Second,
		UpdateInterval: 30 * time.Second,
		ApplicationID:  "infrastructure",
		TaskID:         "",
	}
}

// NewAgentConfig builds an AgentConfig from a parsed File, falling back to
// NewDefaultAgentConfig for any key the file omits.
func NewAgentConfig(f *File) (*AgentConfig, error) {
	c := NewDefaultAgentConfig()

	if v, ok := f.Get("generic", "server"); ok && v != "" {
		c.ServerURL = v
	}
	if v, ok := f.Get("generic", "platform_id"); ok && v != "" {
		c.PlatformID = v
	}
	if v, ok := f.Get("generic", "bulk_size"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BulkSize = n
		}
	}
	if v, ok := f.Get("timings", "default"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.DefaultCadence = time.Duration(n)
		}
	}
	if v, ok := f.Get("timings", "update_configuration"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.UpdateInterval = time.Duration(n) * time.Second
		}
	}

	// by default, application_id is "infrastructure" and task_id is the
	// platform_id, matching the original agent's prepare() behavior.
	if c.TaskID == "" {
		c.TaskID = c.PlatformID
	}

	return c, nil
}

// PluginCadence returns the configured cadence for a named plugin,
// falling back to the default cadence.
func PluginCadence(f *File, name string, defaultCadence time.Duration) time.Duration {
	v, ok := f.Get("timings", name)
	if !ok || v == "" {
		return defaultCadence
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultCadence
	}
	return time.Duration(n)
}

// PluginEvents returns the comma-separated event list configured for a
// named plugin under the [plugins] section.
func PluginEvents(f *File, name string) []string {
	events, _ := f.GetStrArray("plugins", name, ",")
	return events
}
