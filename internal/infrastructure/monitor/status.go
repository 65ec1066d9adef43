package monitor

import "time"

type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	Buffer     bool      `json:"buffer"`
	BufferSize int       `json:"buffer_size"`
	LastCheck  time.Time `json:"last_check"`
}

// Degraded reports whether writes are currently being parked in the buffer
// instead of reaching Postgres.
func (s Status) Degraded() bool {
	return !s.PostgreSQL && s.Buffer
}
