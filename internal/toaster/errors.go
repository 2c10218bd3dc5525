package toaster

import "errors"

// Error kinds. Service methods wrap one of these sentinels so the CLI
// can classify failures without string matching; use errors.Is.
var (
	// ErrBadInput covers malformed input files, missing required
	// arguments, and empty comments where one is required.
	ErrBadInput = errors.New("bad input")

	// ErrFile covers missing, unreadable, or unexpectedly-located
	// files, occupied archive destinations, and checksum mismatches.
	ErrFile = errors.New("file error")

	// ErrInconsistentStore marks states the store's constraints should
	// have prevented. Always fatal, always rolled back.
	ErrInconsistentStore = errors.New("inconsistent store")

	// ErrSystemCall marks a failed external-tool invocation.
	ErrSystemCall = errors.New("system call failed")

	// ErrUnrecognised covers alias lookup misses and unknown
	// manipulators, diagnostics, and output styles.
	ErrUnrecognised = errors.New("unrecognised value")

	// ErrConflictingTOAs is raised when a strict-mode selection
	// violates timfile coherence.
	ErrConflictingTOAs = errors.New("conflicting TOAs")

	// ErrMasterMissing is raised when processing needs a default
	// parfile or template and none is designated master.
	ErrMasterMissing = errors.New("no master designated")

	// ErrVersionChanged is raised when the version triple changes
	// between the start and end of a processing run.
	ErrVersionChanged = errors.New("code version changed during run")
)
