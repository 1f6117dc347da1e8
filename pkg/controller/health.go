package controller

import "time"

// HealthOutput holds the result of Health.
type HealthOutput struct {
	Status    string `json:"status"`
	Checks    Checks `json:"checks"`
	Timestamp string `json:"timestamp"`
}

// Checks holds individual health check results.
type Checks struct {
	ControllersRegistered bool `json:"controllersRegistered"`
}

// Health reports whether the registry has at least one controller registered. It carries
// no dependency on a database or transport; callers composing a richer health check (e.g.
// pkg/livedb connectivity) merge their own checks alongside this one.
func (r *Registry) Health() *HealthOutput {
	ok := len(r.ControllerIDs()) > 0
	status := "healthy"
	if !ok {
		status = "unhealthy"
	}
	return &HealthOutput{
		Status:    status,
		Checks:    Checks{ControllersRegistered: ok},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
