// Package boardpower implements the Board_power plugin: a single
// board-level power reading sourced from a pluggable, hardware-specific
// reader, grounded on
// original_source/src/plugins/Board_power/src/mf_Board_power_connector.h.
// Only the header for this connector was retrieved — no reference
// implementation body exists in original_source/ to follow, so the
// connector's source (an opaque hardware sensor, e.g. an IPMI or BMC
// power reading on the boards this agent targets) is modelled as an
// injectable reader, matching spec.md §9's note that Board_power is a
// pass-through plugin with no portable sensor this repo can read
// directly.
package boardpower

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// Name is this plugin's identity in the registry and in configuration.
const Name = "Board_power"

const boardPower = "board_power"

var supportedEvents = []string{boardPower}

// Reader reads the current board-level power draw, in watts, from
// whatever hardware-specific sensor a given deployment exposes (IPMI,
// BMC, a vendor sysfs node). There is no such sensor path common across
// deployments, so production wiring supplies a concrete Reader rather
// than this package assuming one.
type Reader interface {
	// Available reports whether a sensor was found on this host.
	Available() bool
	// ReadWatts returns the current instantaneous board power draw.
	ReadWatts() (float64, error)
}

// Sampler implements registry.Sampler for board-level power.
type Sampler struct {
	reader Reader
	active bool
}

// New returns a Sampler backed by reader. A nil or unavailable reader
// fails Init (spec.md §7, PluginInitFailed) rather than silently
// reporting zero, since unlike RAPL-absent CPU power there is no
// meaningful zero-power reading for a board that is plainly running.
func New(reader Reader) *Sampler {
	return &Sampler{reader: reader}
}

// Init validates the requested events and confirms the reader is usable.
func (s *Sampler) Init(buf *model.SampleBuffer, requestedEvents []string) error {
	var supported []string
	for _, ev := range requestedEvents {
		if ev == boardPower {
			supported = append(supported, boardPower)
		}
	}
	if len(supported) == 0 {
		return fmt.Errorf("%w: none of %v are supported by %s (want one of %v)",
			mferrors.ErrUnsupportedEvent, requestedEvents, Name, supportedEvents)
	}
	if s.reader == nil || !s.reader.Available() {
		return fmt.Errorf("%w: %s: no board power reader available", mferrors.ErrPluginInitFailed, Name)
	}
	buf.Init(supported)
	s.active = true
	return nil
}

// Sample reads the current board power draw.
func (s *Sampler) Sample(buf *model.SampleBuffer) error {
	if !s.active {
		return fmt.Errorf("%w: %s: not initialized", mferrors.ErrSampleReadFailed, Name)
	}
	watts, err := s.reader.ReadWatts()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", mferrors.ErrSampleReadFailed, Name, err)
	}
	for i := 0; i < buf.NumEvents(); i++ {
		if buf.EventName(i) == boardPower {
			buf.SetValue(i, float32(watts))
		}
	}
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

// Shutdown releases no resources; Reader implementations own their own
// sensor handles.
func (s *Sampler) Shutdown() {
	s.active = false
}
