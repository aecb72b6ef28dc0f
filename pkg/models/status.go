package models

// ServiceStatus is a point-in-time diagnostic snapshot of the gateway.
type ServiceStatus struct {
	CurrentMode         BackendMode `json:"current_mode"`
	RealBackendHealthy  bool        `json:"real_backend_healthy"`
	SimulatorHealthy    bool        `json:"simulator_healthy"`
	AutoFallbackEnabled bool        `json:"auto_fallback_enabled"`
}
