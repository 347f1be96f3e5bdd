// Package composer owns the report submission flow: local validation,
// direct delivery when the remote service is reachable, durable queuing
// when it is not, and debounced auto-save of in-progress drafts.
package composer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/galamseywatch/fieldkit/internal/media"
	"github.com/galamseywatch/fieldkit/internal/model"
	"github.com/galamseywatch/fieldkit/internal/remote"
	"github.com/galamseywatch/fieldkit/internal/store"
)

// ErrQueueUnavailable is returned when a report cannot be delivered and
// the local store is not usable either. The caller must tell the operator
// the report was NOT saved.
var ErrQueueUnavailable = errors.New("offline queue unavailable, report not saved")

// ErrDictationUnavailable is returned by Dictate when no transcriber is wired.
var ErrDictationUnavailable = errors.New("voice dictation unavailable")

// MaxEvidenceDefault bounds evidence attachments per report.
const MaxEvidenceDefault = 5

// Form is the operator-facing report under composition. Coordinates are
// pointers so "not captured yet" is distinct from a zero coordinate.
type Form struct {
	Title           string
	Description     string
	Latitude        *float64
	Longitude       *float64
	Accuracy        *float64
	Region          string
	District        string
	Severity        model.Severity
	IncidentType    model.IncidentType
	ReportedBy      string
	ContactPhone    string
	VoiceTranscript string
	Language        string
	Evidence        []media.Raw
}

// FieldErrors maps form field names to validation messages.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "invalid form"
	}
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + fe[f]
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Status classifies a submit outcome for the operator.
type Status string

const (
	// StatusDelivered means the remote service accepted the report now.
	StatusDelivered Status = "delivered"
	// StatusQueued means the report is saved locally and will sync later.
	StatusQueued Status = "queued"
	// StatusRejected means the remote refused the report permanently.
	StatusRejected Status = "rejected"
)

// Outcome is the result of one Submit call.
type Outcome struct {
	Status       Status
	SubmissionID string
	Message      string
	// PendingCount is the queue depth after a queued outcome.
	PendingCount int
	// NavigateAfter is how long the confirmation should stay visible
	// before the caller moves the operator on. Set on delivery only.
	NavigateAfter time.Duration
}

// Composer assembles and dispatches incident reports. The store may be
// nil, in which case offline queuing and drafts are disabled and only
// direct delivery works.
type Composer struct {
	store         *store.Store
	codec         *media.Codec
	deliver       Deliverer
	online        func() bool
	maxEvidence   int
	navigateDelay time.Duration
	transcriber   Transcriber
	log           *logrus.Logger

	mu       sync.Mutex
	draftID  string
	debounce time.Duration
	timer    *time.Timer
	pending  *Form
}

// Deliverer matches the synchronizer's delivery contract so both share
// one remote client.
type Deliverer interface {
	SubmitIncident(ctx context.Context, payload model.IncidentPayload, evidence []media.Raw, offlineID string, createdAt time.Time) error
}

// Transcriber converts captured audio to text. Speech-to-text lives
// outside this system; a nil transcriber means dictation is unavailable.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Raw, language string) (string, error)
}

func New(st *store.Store, codec *media.Codec, deliver Deliverer, online func() bool, debounce time.Duration, log *logrus.Logger) *Composer {
	if online == nil {
		online = func() bool { return false }
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Composer{
		store:         st,
		codec:         codec,
		deliver:       deliver,
		online:        online,
		maxEvidence:   MaxEvidenceDefault,
		navigateDelay: 2 * time.Second,
		debounce:      debounce,
		log:           log,
	}
}

// SetNavigateDelay overrides how long a delivered confirmation is held.
func (c *Composer) SetNavigateDelay(d time.Duration) {
	c.navigateDelay = d
}

// SetTranscriber wires in a speech-to-text collaborator for Dictate.
func (c *Composer) SetTranscriber(t Transcriber) {
	c.transcriber = t
}

// Dictate appends transcribed audio to the form's voice transcript.
func (c *Composer) Dictate(ctx context.Context, form *Form, audio media.Raw) error {
	if c.transcriber == nil {
		return ErrDictationUnavailable
	}
	text, err := c.transcriber.Transcribe(ctx, audio, form.Language)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if form.VoiceTranscript != "" {
		form.VoiceTranscript += " "
	}
	form.VoiceTranscript += text
	return nil
}

// OfflineAvailable reports whether queuing and drafts are usable.
func (c *Composer) OfflineAvailable() bool { return c.store != nil }

// Validate checks the form locally before any network activity. An empty
// FieldErrors means the form is ready to submit.
func (c *Composer) Validate(form Form) FieldErrors {
	fe := FieldErrors{}
	if strings.TrimSpace(form.Title) == "" {
		fe["title"] = "title is required"
	}
	if strings.TrimSpace(form.Description) == "" {
		fe["description"] = "description is required"
	}
	if strings.TrimSpace(form.Region) == "" {
		fe["region"] = "region is required"
	}
	if strings.TrimSpace(form.ReportedBy) == "" {
		fe["reported_by"] = "reporter name is required"
	}
	if form.Latitude == nil || form.Longitude == nil {
		fe["location"] = "location has not been captured"
	} else if !model.InGhanaBounds(*form.Latitude, *form.Longitude) {
		fe["location"] = fmt.Sprintf("coordinates %.4f,%.4f are outside Ghana", *form.Latitude, *form.Longitude)
	}
	if form.Severity != "" && !model.ValidSeverity(form.Severity) {
		fe["severity"] = fmt.Sprintf("unknown severity %q", form.Severity)
	}
	if form.IncidentType != "" && !model.ValidIncidentType(form.IncidentType) {
		fe["incident_type"] = fmt.Sprintf("unknown incident type %q", form.IncidentType)
	}
	if len(form.Evidence) > c.maxEvidence {
		fe["evidence"] = fmt.Sprintf("at most %d evidence items per report", c.maxEvidence)
	}
	for _, ev := range form.Evidence {
		if len(ev.Bytes) == 0 {
			fe["evidence"] = fmt.Sprintf("evidence %q is empty", ev.Name)
		}
	}
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (c *Composer) payload(form Form) model.IncidentPayload {
	severity := form.Severity
	if severity == "" {
		severity = model.SeverityMedium
	}
	incidentType := form.IncidentType
	if incidentType == "" {
		incidentType = model.IncidentIllegalMining
	}
	p := model.IncidentPayload{
		Title:            strings.TrimSpace(form.Title),
		Description:      strings.TrimSpace(form.Description),
		Region:           form.Region,
		District:         form.District,
		Severity:         severity,
		IncidentType:     incidentType,
		ReportedBy:       strings.TrimSpace(form.ReportedBy),
		ContactPhone:     strings.TrimSpace(form.ContactPhone),
		VoiceTranscript:  form.VoiceTranscript,
		Language:         form.Language,
		LocationAccuracy: form.Accuracy,
	}
	if form.Latitude != nil {
		p.Latitude = *form.Latitude
	}
	if form.Longitude != nil {
		p.Longitude = *form.Longitude
	}
	return p
}

// NewSubmissionID mints the idempotency token attached to a report for
// its whole delivery life: millisecond timestamp plus a random suffix.
func NewSubmissionID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// Submit validates, then tries direct delivery when online, falling back
// to the local queue on transport failure or retryable server errors.
// A definitive remote rejection (4xx other than timeout and rate limit)
// is surfaced to the operator and never queued.
func (c *Composer) Submit(ctx context.Context, form Form) (Outcome, error) {
	if fe := c.Validate(form); fe != nil {
		return Outcome{Status: StatusRejected, Message: fe.Error()}, fe
	}
	payload := c.payload(form)
	now := time.Now().UTC()
	id := NewSubmissionID(now)

	if c.online() {
		err := c.deliver.SubmitIncident(ctx, payload, form.Evidence, id, now)
		if err == nil {
			c.discardDraftAfterSubmit(ctx)
			c.log.WithField("id", id).Info("report delivered")
			return Outcome{Status: StatusDelivered, SubmissionID: id, Message: "report submitted", NavigateAfter: c.navigateDelay}, nil
		}
		if !remote.Retryable(err) {
			c.log.WithField("id", id).WithError(err).Warn("report rejected by remote")
			return Outcome{Status: StatusRejected, SubmissionID: id, Message: err.Error()}, err
		}
		c.log.WithField("id", id).WithError(err).Info("delivery failed, queuing locally")
	}

	return c.queue(ctx, id, payload, form.Evidence, now)
}

func (c *Composer) queue(ctx context.Context, id string, payload model.IncidentPayload, evidence []media.Raw, now time.Time) (Outcome, error) {
	if c.store == nil {
		return Outcome{Status: StatusRejected, Message: ErrQueueUnavailable.Error()}, ErrQueueUnavailable
	}
	stored := make([]model.StoredMedia, 0, len(evidence))
	for _, ev := range evidence {
		sm, err := c.codec.Encode(ev)
		if err != nil {
			return Outcome{Status: StatusRejected, Message: err.Error()}, err
		}
		stored = append(stored, sm)
	}
	sub := model.PendingSubmission{
		ID:        id,
		Payload:   payload,
		Evidence:  stored,
		CreatedAt: now,
		Attempts:  0,
		State:     model.SubmissionPending,
	}
	if err := c.store.AddPendingSubmission(ctx, sub); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return Outcome{Status: StatusRejected, Message: ErrQueueUnavailable.Error()}, errors.Join(ErrQueueUnavailable, err)
		}
		return Outcome{}, fmt.Errorf("queue submission: %w", err)
	}
	c.discardDraftAfterSubmit(ctx)
	count, err := c.store.CountPendingSubmissions(ctx)
	if err != nil {
		count = -1
	}
	c.log.WithFields(logrus.Fields{"id": id, "pending": count}).Info("report queued for sync")
	return Outcome{
		Status:       StatusQueued,
		SubmissionID: id,
		Message:      "saved locally, will sync when back online",
		PendingCount: count,
	}, nil
}

// QueueCaptured persists a report captured off the wire by the request
// intermediary. The payload already passed through the form, so only the
// idempotency identity is added here.
func (c *Composer) QueueCaptured(ctx context.Context, payload model.IncidentPayload) (Outcome, error) {
	now := time.Now().UTC()
	return c.queue(ctx, NewSubmissionID(now), payload, nil, now)
}

// NoteChange schedules a draft auto-save. Repeated calls inside the
// debounce window collapse into one write carrying the latest form.
func (c *Composer) NoteChange(form Form) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := form
	c.pending = &copied
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.flushDraft)
}

func (c *Composer) flushDraft() {
	c.mu.Lock()
	form := c.pending
	c.pending = nil
	if form == nil {
		c.mu.Unlock()
		return
	}
	if c.draftID == "" {
		c.draftID = uuid.NewString()
	}
	draftID := c.draftID
	c.mu.Unlock()

	if strings.TrimSpace(form.Title) == "" && strings.TrimSpace(form.Description) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.saveDraft(ctx, draftID, *form); err != nil {
		c.log.WithError(err).Warn("draft auto-save failed")
	}
}

func (c *Composer) saveDraft(ctx context.Context, id string, form Form) error {
	stored := make([]model.StoredMedia, 0, len(form.Evidence))
	for _, ev := range form.Evidence {
		sm, err := c.codec.Encode(ev)
		if err != nil {
			continue
		}
		stored = append(stored, sm)
	}
	return c.store.PutDraft(ctx, model.DraftReport{
		ID:             id,
		Payload:        c.payload(form),
		Evidence:       stored,
		LastModifiedAt: time.Now().UTC(),
	})
}

// FlushDraftNow forces any scheduled auto-save to run immediately.
// Intended for shutdown paths and tests.
func (c *Composer) FlushDraftNow() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.flushDraft()
}

// ResumeDraft loads a saved draft back into a Form and makes it the
// active draft so the next submit discards it.
func (c *Composer) ResumeDraft(ctx context.Context, id string) (Form, error) {
	if c.store == nil {
		return Form{}, ErrQueueUnavailable
	}
	draft, err := c.store.GetDraft(ctx, id)
	if err != nil {
		return Form{}, err
	}
	c.mu.Lock()
	c.draftID = draft.ID
	c.mu.Unlock()

	form := Form{
		Title:           draft.Payload.Title,
		Description:     draft.Payload.Description,
		Region:          draft.Payload.Region,
		District:        draft.Payload.District,
		Severity:        draft.Payload.Severity,
		IncidentType:    draft.Payload.IncidentType,
		ReportedBy:      draft.Payload.ReportedBy,
		ContactPhone:    draft.Payload.ContactPhone,
		VoiceTranscript: draft.Payload.VoiceTranscript,
		Language:        draft.Payload.Language,
		Accuracy:        draft.Payload.LocationAccuracy,
	}
	if draft.Payload.Latitude != 0 || draft.Payload.Longitude != 0 {
		lat, lng := draft.Payload.Latitude, draft.Payload.Longitude
		form.Latitude, form.Longitude = &lat, &lng
	}
	for _, sm := range draft.Evidence {
		form.Evidence = append(form.Evidence, c.codec.Decode(sm))
	}
	return form, nil
}

// DiscardDraft deletes a draft explicitly.
func (c *Composer) DiscardDraft(ctx context.Context, id string) error {
	if c.store == nil {
		return ErrQueueUnavailable
	}
	c.mu.Lock()
	if c.draftID == id {
		c.draftID = ""
	}
	c.mu.Unlock()
	return c.store.DeleteDraft(ctx, id)
}

func (c *Composer) discardDraftAfterSubmit(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	id := c.draftID
	c.draftID = ""
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.mu.Unlock()
	if id == "" {
		return
	}
	if err := c.store.DeleteDraft(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.log.WithError(err).Warn("discard draft after submit failed")
	}
}

// PendingCount reports the current offline queue depth, zero when the
// store is unavailable.
func (c *Composer) PendingCount(ctx context.Context) int {
	if c.store == nil {
		return 0
	}
	n, err := c.store.CountPendingSubmissions(ctx)
	if err != nil {
		return 0
	}
	return n
}
