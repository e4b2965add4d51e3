package models

import "fmt"

// ServiceUp is the value the backend reports for a reachable dependency.
const ServiceUp = "UP"

// Health is the response of GET /v1/health.
type Health struct {
	API       string `json:"api"`
	Qdrant    string `json:"qdrant"`
	SurrealDB string `json:"surrealdb"`
	Redis     string `json:"redis"`
	Postgres  string `json:"postgres"`
}

// Services returns the dependency statuses in display order.
func (h Health) Services() []ServiceStatus {
	return []ServiceStatus{
		{Name: "api", Status: h.API},
		{Name: "qdrant", Status: h.Qdrant},
		{Name: "surreal", Status: h.SurrealDB},
		{Name: "redis", Status: h.Redis},
		{Name: "postgres", Status: h.Postgres},
	}
}

// AllUp reports whether every dependency is UP.
func (h Health) AllUp() bool {
	for _, s := range h.Services() {
		if s.Status != ServiceUp {
			return false
		}
	}
	return true
}

// Summary renders "api=UP, qdrant=DOWN, ..." for log lines.
func (h Health) Summary() string {
	var out string
	for i, s := range h.Services() {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%s", s.Name, s.Status)
	}
	return out
}

// DownHealth is what the dashboard assumes when /v1/health is unreachable.
func DownHealth() Health {
	return Health{API: "DOWN", Qdrant: "DOWN", SurrealDB: "DOWN", Redis: "DOWN", Postgres: "DOWN"}
}

// ServiceStatus pairs a dependency name with its reported status.
type ServiceStatus struct {
	Name   string
	Status string
}
