// Package api holds the wire types of the interceptor daemon's control
// surface consumed by foreground clients.
package api

import "time"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type HealthResponse struct {
	SchemaVersion string `json:"schema_version"`
	Status        string `json:"status"`
	Generation    string `json:"generation"`
}

type StatusResponse struct {
	SchemaVersion    string    `json:"schema_version"`
	GeneratedAt      time.Time `json:"generated_at"`
	Generation       string    `json:"generation"`
	Active           bool      `json:"active"`
	UpstreamOnline   bool      `json:"upstream_online"`
	AttachedContexts int       `json:"attached_contexts"`
	CachedEntries    int64     `json:"cached_entries,omitempty"`
}

// OfflineAPIResponse is the synthetic body served when both network and
// cache miss on a data read.
type OfflineAPIResponse struct {
	Offline bool   `json:"offline"`
	Error   string `json:"error"`
	Cached  bool   `json:"cached"`
}

// QueuedResponse is the synthetic 202 body returned for a captured write.
type QueuedResponse struct {
	Success bool   `json:"success"`
	Offline bool   `json:"offline"`
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}
