package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db    DBPinger
	asset AssetProber
}

// New creates a Service. db can be nil when checkpoints are disabled.
func New(db DBPinger, asset AssetProber) *Service {
	return &Service{db: db, asset: asset}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	// Without the asset no operation can succeed.
	if _, err := s.asset.Balance(ctx); err != nil {
		checks["asset"] = CheckError
	} else {
		checks["asset"] = CheckOK
	}

	status := Healthy
	switch {
	case checks["asset"] == CheckError:
		status = Unhealthy
	case checks["database"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
