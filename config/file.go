// Package config implements the agent's section/key/value configuration
// store over an INI file, and the typed AgentConfig view built from it.
package config

import (
	"strings"

	"gopkg.in/ini.v1"
)

// File wraps a parsed INI document. It is the unit the store reloads
// atomically: a watcher loads a fresh File and swaps it in behind a mutex.
type File struct {
	instance *ini.File
	Path     string
}

// Load parses the INI file at path.
func Load(path string) (*File, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return &File{instance: f, Path: path}, nil
}

// Get returns a key's trimmed string value, and whether the section/key
// exist at all.
func (f *File) Get(section, key string) (string, bool) {
	if f == nil || f.instance == nil {
		return "", false
	}
	sec, err := f.instance.GetSection(section)
	if err != nil {
		return "", false
	}
	if !sec.HasKey(key) {
		return "", false
	}
	return strings.TrimSpace(sec.Key(key).String()), true
}

// GetStrArray splits a key's value on delim, trimming whitespace from each
// element.
func (f *File) GetStrArray(section, key, delim string) ([]string, error) {
	raw, ok := f.Get(section, key)
	if !ok || raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, delim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out, nil
}

// Section returns the keys of a whole section as a plain map, used by
// discovery to read every plugins.<name> and timings.<name> entry without
// knowing the plugin names in advance.
func (f *File) Section(name string) map[string]string {
	out := map[string]string{}
	if f == nil || f.instance == nil {
		return out
	}
	sec, err := f.instance.GetSection(name)
	if err != nil {
		return out
	}
	for _, k := range sec.Keys() {
		out[k.Name()] = strings.TrimSpace(k.String())
	}
	return out
}
