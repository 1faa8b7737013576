package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Executor and OS state
	ErrCommandFailed = errors.New("privileged command failed")
	ErrStateUnknown  = errors.New("os state could not be classified")
	ErrNoPrivilege   = errors.New("root shell unavailable")

	// Idle mode
	ErrTransitionIncomplete = errors.New("idle mode did not reach the target state")

	// Scheduler
	ErrUnknownMode = errors.New("unknown scheduler mode")

	// Whitelist
	ErrWhitelistEntryNotFound = errors.New("whitelist entry not found")
	ErrInvalidCategory        = errors.New("invalid whitelist category")
	ErrEmptyIdentifier        = errors.New("whitelist identifier must not be empty")

	// Configuration and lifecycle
	ErrInvalidSettings = errors.New("invalid settings")
	ErrAlreadyRunning  = errors.New("orchestrator already running")
)

// ─── Classified Results ─────────────────────────────────────────────────────

// ErrorKind classifies why a controller operation did not succeed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindCommandFailure
	KindStateUnknown
	KindConfigInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCommandFailure:
		return "command_failure"
	case KindStateUnknown:
		return "state_unknown"
	case KindConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

// Result is returned by every controller operation instead of an error.
// Controllers never propagate failures; callers branch on OK and tests
// assert on Kind.
type Result struct {
	OK   bool
	Kind ErrorKind
	Err  error
}

// Success is the zero-failure result.
func Success() Result { return Result{OK: true} }

// Failure builds a failed result of the given kind.
func Failure(kind ErrorKind, err error) Result {
	return Result{Kind: kind, Err: err}
}

// CommandResult is what the privileged executor reports for one invocation.
type CommandResult struct {
	Success bool
	Lines   []string
	Err     error
}
