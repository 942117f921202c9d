package models

// Health is the replication/availability status a cluster reports for an index.
type Health string

const (
	HealthGreen  Health = "green"
	HealthYellow Health = "yellow"
	HealthRed    Health = "red"
)

// IndexRecord is a snapshot of one index taken from an inventory query.
type IndexRecord struct {
	Name          string `json:"name"`
	Health        Health `json:"health"`
	DocumentCount int64  `json:"document_count"`
}
