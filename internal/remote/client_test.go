package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/galamseywatch/fieldkit/internal/media"
	"github.com/galamseywatch/fieldkit/internal/model"
)

func testPayload() model.IncidentPayload {
	return model.IncidentPayload{
		Title:        "excavator sighting",
		Description:  "three machines by the Offin river",
		Latitude:     6.2,
		Longitude:    -1.66,
		Region:       "Ashanti",
		District:     "Amansie West",
		Severity:     model.SeverityHigh,
		IncidentType: model.IncidentIllegalMining,
		ReportedBy:   "observer",
	}
}

func TestSubmitIncidentMultipartFields(t *testing.T) {
	var gotForm map[string][]string
	var gotFiles int
	var gotFileBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/incidents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotForm = r.MultipartForm.Value
		if files := r.MultipartForm.File["evidence"]; len(files) > 0 {
			gotFiles = len(files)
			f, err := files[0].Open()
			if err == nil {
				buf := make([]byte, files[0].Size)
				n, _ := f.Read(buf)
				gotFileBytes = buf[:n]
				f.Close()
			}
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL)
	createdAt := time.UnixMilli(1700000000123)
	evidence := []media.Raw{{Name: "site.jpg", MimeType: "image/jpeg", Bytes: []byte{0xFF, 0xD8, 0xFF}}}
	err := client.SubmitIncident(context.Background(), testPayload(), evidence, "1700000000123-ab12cd34", createdAt)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	want := map[string]string{
		"title":               "excavator sighting",
		"latitude":            "6.2",
		"longitude":           "-1.66",
		"severity":            "high",
		"incident_type":       "illegal_mining",
		FieldOfflineID:        "1700000000123-ab12cd34",
		FieldOfflineCreatedAt: "1700000000123",
	}
	for field, value := range want {
		if len(gotForm[field]) != 1 || gotForm[field][0] != value {
			t.Fatalf("field %s = %v, want %q", field, gotForm[field], value)
		}
	}
	if gotFiles != 1 {
		t.Fatalf("expected 1 evidence part, got %d", gotFiles)
	}
	if string(gotFileBytes) != string(evidence[0].Bytes) {
		t.Fatalf("evidence bytes altered in transit")
	}
}

func TestSubmitIncidentDecodesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"severity is invalid"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).SubmitIncident(context.Background(), testPayload(), nil, "id-1", time.Now())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusUnprocessableEntity || reqErr.Message != "severity is invalid" {
		t.Fatalf("error not decoded: %+v", reqErr)
	}
	if reqErr.Retryable() {
		t.Fatalf("422 must not be retryable")
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusNotFound, false},
	}
	for _, tc := range cases {
		e := &RequestError{StatusCode: tc.status}
		if e.Retryable() != tc.want {
			t.Fatalf("Retryable(%d) = %t, want %t", tc.status, e.Retryable(), tc.want)
		}
	}
	if !Retryable(errors.New("dial tcp: connection refused")) {
		t.Fatalf("plain transport error must be retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
}

func TestSubmitIncidentTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	err := New(srv.URL).SubmitIncident(context.Background(), testPayload(), nil, "id-1", time.Now())
	if err == nil {
		t.Fatalf("expected transport failure")
	}
	if !Retryable(err) {
		t.Fatalf("transport failure must be retryable: %v", err)
	}
}

func TestReachableProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	client := New(srv.URL)
	if !client.Reachable(context.Background()) {
		t.Fatalf("any HTTP answer means reachable")
	}
	srv.Close()
	if client.Reachable(context.Background()) {
		t.Fatalf("closed server must be unreachable")
	}
}

func TestFetchIncidents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/incidents" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"title":"pit near school","region":"Western","severity":"critical","incident_type":"illegal_mining"}]`))
	}))
	defer srv.Close()

	incidents, err := New(srv.URL).FetchIncidents(context.Background())
	if err != nil {
		t.Fatalf("fetch incidents: %v", err)
	}
	if len(incidents) != 1 || incidents[0].ID != 7 || incidents[0].Severity != model.SeverityCritical {
		t.Fatalf("unexpected incidents: %+v", incidents)
	}
}
