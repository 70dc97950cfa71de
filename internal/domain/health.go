package domain

// ============================================================
// Health & Stats API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Backend  string          `json:"backend"`
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ServiceStats is returned by GET /v1/stats.
type ServiceStats struct {
	ReportsBuilt     int64   `json:"reportsBuilt"`
	ExportsRendered  int64   `json:"exportsRendered"`
	RecordsRejected  int64   `json:"recordsRejected"`
	AmountsCoerced   int64   `json:"amountsCoerced"`
	FallbackReports  int64   `json:"fallbackReports"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	BackupsQueued    int64   `json:"backupsQueued"`
	BackupsCompleted int64   `json:"backupsCompleted"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
