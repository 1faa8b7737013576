package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The orchestrator and controllers depend only on these.
// Infrastructure implements them.

// Executor runs command lines with elevated privilege. Implementations
// bound every call with a timeout.
type Executor interface {
	Execute(ctx context.Context, command string) CommandResult

	// ExecuteBatch runs all commands in one invocation. The batch fails
	// only if that invocation fails; lines ending in "|| true" never do.
	ExecuteBatch(ctx context.Context, commands []string) CommandResult

	// ReadFile returns the file contents, or false if it cannot be read.
	ReadFile(ctx context.Context, path string) (string, bool)
}

// SettingsProvider serves the current configuration snapshot and the
// whitelists. All reads are synchronous.
type SettingsProvider interface {
	Settings() Settings
	SuppressWhitelist() []WhitelistEntry
	BackgroundWhitelist() []WhitelistEntry
}

// StatsSink receives increment-only counters.
type StatsSink interface {
	Increment(c Counter)
	RecordServiceStart(t time.Time)
}

// StatusSink receives the human status line and the append-only log.
type StatusSink interface {
	SetStatus(status string)
	Append(message string)
}
