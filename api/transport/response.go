package transport

import (
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Envelope wraps every ops server response.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  *Problem    `json:"error,omitempty"`
}

// Problem tells a poller whether backing off and retrying can help.
type Problem struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Health is the /health payload.
type Health struct {
	Timestamp time.Time      `json:"timestamp"`
	LastCheck time.Time      `json:"last_check"`
	Services  HealthServices `json:"services"`
}

type HealthServices struct {
	PostgreSQL bool         `json:"postgresql"`
	Redis      bool         `json:"redis"`
	Buffer     BufferHealth `json:"buffer"`
}

type BufferHealth struct {
	Online   bool `json:"online"`
	Size     int  `json:"size"`
	Degraded bool `json:"degraded"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}) Envelope {
	return Envelope{Status: "success", Data: data}
}

// NewError returns an error envelope. Data may carry a partial payload,
// such as the health snapshot of a degraded engine.
func NewError(code string, err error, data interface{}) Envelope {
	env := Envelope{Status: "error", Code: code, Data: data}
	if err != nil {
		env.Error = &Problem{Message: err.Error(), Retryable: domain.IsRetryable(err)}
	}
	return env
}
