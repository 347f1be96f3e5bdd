package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Message types exchanged between the interceptor daemon and foreground
// contexts. The set is closed; payloads are validated at the receiving
// boundary before any store write happens.
const (
	MsgOfflineIncidentQueued = "OFFLINE_INCIDENT_QUEUED"
	MsgSyncOfflineIncidents  = "SYNC_OFFLINE_INCIDENTS"
	MsgSkipWaiting           = "SKIP_WAITING"
	MsgGenerationAdopted     = "GENERATION_ADOPTED"
)

var ErrMessageInvalid = errors.New("message invalid")

// Message is the tagged envelope for all interceptor<->foreground traffic.
// Data is only present for OFFLINE_INCIDENT_QUEUED, Generation only for
// GENERATION_ADOPTED.
type Message struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Generation string          `json:"generation,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

func (m Message) Validate() error {
	switch m.Type {
	case MsgOfflineIncidentQueued:
		if len(m.Data) == 0 {
			return fmt.Errorf("%w: %s requires data", ErrMessageInvalid, m.Type)
		}
		if m.Timestamp <= 0 {
			return fmt.Errorf("%w: %s requires timestamp", ErrMessageInvalid, m.Type)
		}
		var probe map[string]any
		if err := json.Unmarshal(m.Data, &probe); err != nil {
			return fmt.Errorf("%w: %s data is not an object: %v", ErrMessageInvalid, m.Type, err)
		}
		return nil
	case MsgSyncOfflineIncidents, MsgSkipWaiting:
		if len(m.Data) != 0 {
			return fmt.Errorf("%w: %s carries no data", ErrMessageInvalid, m.Type)
		}
		return nil
	case MsgGenerationAdopted:
		if m.Generation == "" {
			return fmt.Errorf("%w: %s requires generation", ErrMessageInvalid, m.Type)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrMessageInvalid)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMessageInvalid, m.Type)
	}
}

func QueuedIncidentMessage(capturedPayload []byte, now time.Time) Message {
	return Message{
		Type:      MsgOfflineIncidentQueued,
		Data:      json.RawMessage(capturedPayload),
		Timestamp: now.UnixMilli(),
	}
}

// CapturedPayload decodes the body of an OFFLINE_INCIDENT_QUEUED message into
// the incident fields the foreground persists as a PendingSubmission.
// Form-captured bodies carry every value as a string, so numeric fields are
// coerced here at the receiving boundary.
func (m Message) CapturedPayload() (IncidentPayload, error) {
	if m.Type != MsgOfflineIncidentQueued {
		return IncidentPayload{}, fmt.Errorf("%w: not a queued-incident message", ErrMessageInvalid)
	}
	if err := m.Validate(); err != nil {
		return IncidentPayload{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(m.Data, &fields); err != nil {
		return IncidentPayload{}, fmt.Errorf("decode captured payload: %w", err)
	}

	payload := IncidentPayload{
		Title:           str(fields["title"]),
		Description:     str(fields["description"]),
		Region:          str(fields["region"]),
		District:        str(fields["district"]),
		Severity:        Severity(str(fields["severity"])),
		IncidentType:    IncidentType(str(fields["incident_type"])),
		ReportedBy:      str(fields["reported_by"]),
		ContactPhone:    str(fields["contact_phone"]),
		VoiceTranscript: str(fields["voiceTranscript"]),
		Language:        str(fields["language"]),
	}
	var err error
	if payload.Latitude, err = num(fields["latitude"]); err != nil {
		return IncidentPayload{}, fmt.Errorf("%w: latitude: %v", ErrMessageInvalid, err)
	}
	if payload.Longitude, err = num(fields["longitude"]); err != nil {
		return IncidentPayload{}, fmt.Errorf("%w: longitude: %v", ErrMessageInvalid, err)
	}
	if raw, ok := fields["locationAccuracy"]; ok && raw != nil {
		if s, isStr := raw.(string); !isStr || s != "" {
			accuracy, err := num(raw)
			if err != nil {
				return IncidentPayload{}, fmt.Errorf("%w: locationAccuracy: %v", ErrMessageInvalid, err)
			}
			payload.LocationAccuracy = &accuracy
		}
	}
	return payload, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(value, 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
