package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMessageValidate(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"queued incident ok", QueuedIncidentMessage([]byte(`{"title":"x"}`), now), false},
		{"queued incident no data", Message{Type: MsgOfflineIncidentQueued, Timestamp: now.UnixMilli()}, true},
		{"queued incident no timestamp", Message{Type: MsgOfflineIncidentQueued, Data: json.RawMessage(`{}`)}, true},
		{"queued incident non-object data", Message{Type: MsgOfflineIncidentQueued, Data: json.RawMessage(`[1]`), Timestamp: now.UnixMilli()}, true},
		{"sync incidents ok", Message{Type: MsgSyncOfflineIncidents}, false},
		{"sync incidents with data", Message{Type: MsgSyncOfflineIncidents, Data: json.RawMessage(`{}`)}, true},
		{"skip waiting ok", Message{Type: MsgSkipWaiting}, false},
		{"generation adopted ok", Message{Type: MsgGenerationAdopted, Generation: "gen-1"}, false},
		{"generation adopted missing generation", Message{Type: MsgGenerationAdopted}, true},
		{"missing type", Message{}, true},
		{"unknown type", Message{Type: "REBOOT"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrMessageInvalid) {
				t.Fatalf("error not wrapped in ErrMessageInvalid: %v", err)
			}
		})
	}
}

func TestCapturedPayloadCoercesFormStrings(t *testing.T) {
	// A form capture carries every value as a string.
	data := []byte(`{
		"title": "galamsey pit",
		"description": "fresh excavation",
		"latitude": "6.21",
		"longitude": "-1.67",
		"locationAccuracy": "15.5",
		"region": "Ashanti",
		"district": "Amansie West",
		"severity": "high",
		"incident_type": "illegal_mining",
		"reported_by": "observer",
		"contact_phone": "+233241234567"
	}`)
	msg := QueuedIncidentMessage(data, time.Now())

	payload, err := msg.CapturedPayload()
	if err != nil {
		t.Fatalf("captured payload: %v", err)
	}
	if payload.Latitude != 6.21 || payload.Longitude != -1.67 {
		t.Fatalf("coordinates not coerced: %f,%f", payload.Latitude, payload.Longitude)
	}
	if payload.LocationAccuracy == nil || *payload.LocationAccuracy != 15.5 {
		t.Fatalf("accuracy not coerced: %v", payload.LocationAccuracy)
	}
	if payload.Severity != SeverityHigh || payload.IncidentType != IncidentIllegalMining {
		t.Fatalf("enums not mapped: %s %s", payload.Severity, payload.IncidentType)
	}
}

func TestCapturedPayloadJSONNumbers(t *testing.T) {
	data := []byte(`{"title":"t","latitude":6.2,"longitude":-1.6,"locationAccuracy":10}`)
	msg := QueuedIncidentMessage(data, time.Now())

	payload, err := msg.CapturedPayload()
	if err != nil {
		t.Fatalf("captured payload: %v", err)
	}
	if payload.Latitude != 6.2 || payload.Longitude != -1.6 {
		t.Fatalf("numeric fields lost: %f,%f", payload.Latitude, payload.Longitude)
	}
	if payload.LocationAccuracy == nil || *payload.LocationAccuracy != 10 {
		t.Fatalf("numeric accuracy lost: %v", payload.LocationAccuracy)
	}
}

func TestCapturedPayloadEmptyAccuracySkipped(t *testing.T) {
	data := []byte(`{"title":"t","latitude":"6.2","longitude":"-1.6","locationAccuracy":""}`)
	msg := QueuedIncidentMessage(data, time.Now())

	payload, err := msg.CapturedPayload()
	if err != nil {
		t.Fatalf("captured payload: %v", err)
	}
	if payload.LocationAccuracy != nil {
		t.Fatalf("empty accuracy should stay nil, got %v", *payload.LocationAccuracy)
	}
}

func TestCapturedPayloadMissingCoordinatesRejected(t *testing.T) {
	msg := QueuedIncidentMessage([]byte(`{"title":"t"}`), time.Now())
	if _, err := msg.CapturedPayload(); !errors.Is(err, ErrMessageInvalid) {
		t.Fatalf("expected ErrMessageInvalid, got %v", err)
	}

	wrong := Message{Type: MsgSkipWaiting}
	if _, err := wrong.CapturedPayload(); !errors.Is(err, ErrMessageInvalid) {
		t.Fatalf("expected ErrMessageInvalid for wrong type, got %v", err)
	}
}

func TestInGhanaBounds(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{6.2, -1.66, true},
		{4.5, -3.5, true},
		{11.5, 1.5, true},
		{4.49, 0, false},
		{11.51, 0, false},
		{6, -3.51, false},
		{6, 1.51, false},
	}
	for _, tc := range cases {
		if got := InGhanaBounds(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("InGhanaBounds(%f,%f) = %t, want %t", tc.lat, tc.lng, got, tc.want)
		}
	}
}
