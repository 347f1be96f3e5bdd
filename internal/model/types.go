package model

import "time"

// SubmissionState is the lifecycle state of a queued report persisted in the store.
type SubmissionState string

const (
	SubmissionPending SubmissionState = "pending"
	SubmissionSyncing SubmissionState = "syncing"
	SubmissionFailed  SubmissionState = "failed"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type IncidentType string

const (
	IncidentIllegalMining   IncidentType = "illegal_mining"
	IncidentWaterPollution  IncidentType = "water_pollution"
	IncidentDeforestation   IncidentType = "deforestation"
	IncidentLandDegradation IncidentType = "land_degradation"
)

func ValidIncidentType(t IncidentType) bool {
	switch t {
	case IncidentIllegalMining, IncidentWaterPollution, IncidentDeforestation, IncidentLandDegradation:
		return true
	}
	return false
}

// IncidentPayload carries the report fields delivered to the remote incident service.
type IncidentPayload struct {
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Latitude         float64      `json:"latitude"`
	Longitude        float64      `json:"longitude"`
	LocationAccuracy *float64     `json:"locationAccuracy,omitempty"`
	Region           string       `json:"region"`
	District         string       `json:"district"`
	Severity         Severity     `json:"severity"`
	IncidentType     IncidentType `json:"incident_type"`
	ReportedBy       string       `json:"reported_by"`
	ContactPhone     string       `json:"contact_phone,omitempty"`
	VoiceTranscript  string       `json:"voiceTranscript,omitempty"`
	Language         string       `json:"language,omitempty"`
}

// StoredMedia is one evidence item owned by exactly one submission or draft.
// Bytes are never shared across owning records.
type StoredMedia struct {
	ID             string
	Name           string
	MimeType       string
	SizeBytes      int64
	Bytes          []byte
	ThumbnailBytes []byte
	CapturedAt     time.Time
	Latitude       *float64
	Longitude      *float64
	Accuracy       *float64
}

// PendingSubmission is a report awaiting delivery. The id doubles as the
// idempotency token sent to the remote service on every delivery attempt.
type PendingSubmission struct {
	ID            string
	Payload       IncidentPayload
	Evidence      []StoredMedia
	CreatedAt     time.Time
	Attempts      int
	LastAttemptAt *time.Time
	State         SubmissionState
	LastError     string
}

// DraftReport is an in-progress form auto-saved on a debounce timer.
// Payload fields may be partially filled.
type DraftReport struct {
	ID             string
	Payload        IncidentPayload
	Evidence       []StoredMedia
	LastModifiedAt time.Time
}

type QueueKind string

const (
	QueueKindIncident QueueKind = "incident"
	QueueKindEvidence QueueKind = "evidence"
	QueueKindUpdate   QueueKind = "update"
)

type QueueAction string

const (
	QueueActionCreate QueueAction = "create"
	QueueActionUpdate QueueAction = "update"
	QueueActionDelete QueueAction = "delete"
)

// SyncQueueItem is a generalized queue entry for operations beyond incident
// creation. Consumers drain by descending priority, FIFO within a band.
type SyncQueueItem struct {
	ID        string
	Kind      QueueKind
	Action    QueueAction
	Data      []byte
	CreatedAt time.Time
	Priority  int
}

// CachedIncident is the read-model mirror of a server-side incident record.
type CachedIncident struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Region       string       `json:"region"`
	District     string       `json:"district"`
	ReportedBy   string       `json:"reported_by"`
	Status       string       `json:"status"`
	Severity     Severity     `json:"severity"`
	IncidentType IncidentType `json:"incident_type"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
}

type CachedWaterReading struct {
	ID            int64    `json:"id"`
	WaterBodyName string   `json:"water_body_name"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Region        string   `json:"region"`
	PHLevel       *float64 `json:"ph_level,omitempty"`
	TurbidityNTU  *float64 `json:"turbidity_ntu,omitempty"`
	MercuryPPB    *float64 `json:"mercury_level_ppb,omitempty"`
	QualityStatus string   `json:"quality_status"`
	MeasuredBy    string   `json:"measured_by"`
	MeasuredAt    string   `json:"measured_at"`
}

type CachedMiningSite struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Region        string   `json:"region"`
	District      string   `json:"district"`
	AreaHectares  *float64 `json:"estimated_area_hectares,omitempty"`
	Status        string   `json:"status"`
	FirstDetected string   `json:"first_detected"`
}

// GhanaRegions is the canonical region list for validation and form choices.
var GhanaRegions = []string{
	"Ashanti", "Brong-Ahafo", "Central", "Eastern", "Greater Accra",
	"Northern", "Upper East", "Upper West", "Volta", "Western",
	"Ahafo", "Bono East", "North East", "Oti", "Savannah", "Western North",
}

// Coordinate bounds for Ghana, checked locally before any network call.
const (
	GhanaMinLat = 4.5
	GhanaMaxLat = 11.5
	GhanaMinLng = -3.5
	GhanaMaxLng = 1.5
)

func InGhanaBounds(lat, lng float64) bool {
	return lat >= GhanaMinLat && lat <= GhanaMaxLat && lng >= GhanaMinLng && lng <= GhanaMaxLng
}
