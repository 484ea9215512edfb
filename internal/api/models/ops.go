package models

// Health is the liveness payload of GET /ops/health.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the payload of GET /ops/status. Status is the worst status of
// any subsystem or engine.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
}

// SubsystemStatus reports one local dependency such as the station catalog.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the breaker view of one routing engine. RetryAfterSeconds
// is set only while the breaker is open.
type ProviderStatus struct {
	Provider          string       `json:"provider"`
	Status            HealthStatus `json:"status"`
	CircuitState      string       `json:"circuitState"`
	CircuitChangedAt  *Timestamp   `json:"circuitChangedAt,omitempty"`
	RetryAfterSeconds int          `json:"retryAfterSeconds,omitempty"`
	Requests          uint32       `json:"requests"`
	Failures          uint32       `json:"failures"`
	LastSuccessAt     *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt     *Timestamp   `json:"lastFailureAt,omitempty"`
	Message           *string      `json:"message,omitempty"`
}
