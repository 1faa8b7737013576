package domain

// Counter names one of the monotonically increasing statistics.
type Counter int

const (
	CounterStateChange Counter = iota
	CounterEnterAttempt
	CounterEnterSuccess
	CounterExitAttempt
	CounterExitSuccess
	CounterAutoExit
	CounterAutoExitRecovered
	CounterMaintenance
)

// String returns the storage key for the counter.
func (c Counter) String() string {
	switch c {
	case CounterStateChange:
		return "state_change"
	case CounterEnterAttempt:
		return "idle_enter_attempt"
	case CounterEnterSuccess:
		return "idle_enter_success"
	case CounterExitAttempt:
		return "idle_exit_attempt"
	case CounterExitSuccess:
		return "idle_exit_success"
	case CounterAutoExit:
		return "auto_exit_detected"
	case CounterAutoExitRecovered:
		return "auto_exit_recovered"
	case CounterMaintenance:
		return "maintenance_window"
	default:
		return "unknown"
	}
}

// Counters lists every counter in declaration order.
func Counters() []Counter {
	return []Counter{
		CounterStateChange,
		CounterEnterAttempt,
		CounterEnterSuccess,
		CounterExitAttempt,
		CounterExitSuccess,
		CounterAutoExit,
		CounterAutoExitRecovered,
		CounterMaintenance,
	}
}
