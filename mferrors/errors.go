// Package mferrors defines the sentinel error kinds raised across the
// agent, matching the error taxonomy the spec assigns a fatal/non-fatal
// policy to.
package mferrors

import "errors"

var (
	// ErrConfigMissing is raised when the configuration file cannot be
	// found or parsed at startup. Fatal.
	ErrConfigMissing = errors.New("mferrors: configuration missing or unparsable")

	// ErrExperimentCreationFailed is raised when the server rejects or
	// does not respond to the experiment-creation request. Fatal.
	ErrExperimentCreationFailed = errors.New("mferrors: experiment creation failed")

	// ErrPluginInitFailed is raised when a plugin's Init rejects every
	// requested event or an underlying facility is unavailable.
	// Non-fatal: the plugin is skipped.
	ErrPluginInitFailed = errors.New("mferrors: plugin init failed")

	// ErrSampleReadFailed is raised when a plugin's Sample call fails.
	// Non-fatal: the sample is skipped.
	ErrSampleReadFailed = errors.New("mferrors: sample read failed")

	// ErrPublishFailed is raised when a publish HTTP call fails.
	// Non-fatal: the batch is dropped.
	ErrPublishFailed = errors.New("mferrors: publish failed")

	// ErrThreadCreateFailed is raised when a worker goroutine cannot be
	// started. Fatal.
	ErrThreadCreateFailed = errors.New("mferrors: worker could not be started")

	// ErrUnsupportedEvent is raised by a plugin when none of its
	// requested events are supported.
	ErrUnsupportedEvent = errors.New("mferrors: unsupported event")

	// ErrCounterUnavailable is raised when a hardware counter facility
	// (RAPL, PAPI event, etc.) is not available on this host.
	ErrCounterUnavailable = errors.New("mferrors: counter unavailable")
)
