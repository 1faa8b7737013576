package domain

import "time"

// Event is one line of the append-only orchestrator log.
type Event struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
