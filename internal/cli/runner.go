// Package cli implements the fieldkit command line: report composition,
// queue inspection, sync control, and the foreground agent loop that
// pairs with the interceptor daemon.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/galamseywatch/fieldkit/internal/capability"
	"github.com/galamseywatch/fieldkit/internal/composer"
	"github.com/galamseywatch/fieldkit/internal/config"
	"github.com/galamseywatch/fieldkit/internal/daemonclient"
	"github.com/galamseywatch/fieldkit/internal/logging"
	"github.com/galamseywatch/fieldkit/internal/media"
	"github.com/galamseywatch/fieldkit/internal/model"
	"github.com/galamseywatch/fieldkit/internal/remote"
	"github.com/galamseywatch/fieldkit/internal/security"
	"github.com/galamseywatch/fieldkit/internal/store"
	"github.com/galamseywatch/fieldkit/internal/syncer"
)

type Runner struct {
	cfg    config.Config
	out    io.Writer
	errOut io.Writer
	log    *logrus.Logger
}

func NewRunner(cfg config.Config, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{cfg: cfg, out: out, errOut: errOut, log: logging.New()}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		r.printUsage()
		return 2
	}
	switch args[0] {
	case "submit":
		return r.runSubmit(ctx, args[1:])
	case "pending":
		return r.runPending(ctx, args[1:])
	case "retry":
		return r.runRetry(ctx, args[1:])
	case "rm":
		return r.runRemove(ctx, args[1:])
	case "drafts":
		return r.runDrafts(ctx, args[1:])
	case "sync":
		return r.runSync(ctx, args[1:])
	case "refresh":
		return r.runRefresh(ctx, args[1:])
	case "incidents":
		return r.runIncidents(ctx, args[1:])
	case "status":
		return r.runStatus(ctx, args[1:])
	case "watch":
		return r.runWatch(ctx, args[1:])
	case "agent":
		return r.runAgent(ctx, args[1:])
	case "capabilities":
		return r.runCapabilities(ctx, args[1:])
	case "clear":
		return r.runClear(ctx, args[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", args[0])
		r.printUsage()
		return 2
	}
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, `usage: fieldkit <command> [flags]

commands:
  submit        compose and submit an incident report
  pending       list queued submissions
  retry <id>    move a failed submission back to pending
  rm <id>       delete a queued submission
  drafts        list or delete saved drafts
  sync          run one sync pass now
  refresh       refresh the cached read models from the remote service
  incidents     list cached incidents
  status        show interceptor daemon and queue status
  watch         stream interceptor messages
  agent         run the foreground agent loop
  capabilities  probe optional facilities
  clear         wipe all local data`)
}

// stringSlice is a repeatable flag value.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (r *Runner) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, r.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, st.DB()); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func (r *Runner) runSubmit(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		title      = fs.String("title", "", "report title")
		desc       = fs.String("description", "", "what was observed")
		lat        = fs.Float64("lat", 0, "latitude")
		lng        = fs.Float64("lng", 0, "longitude")
		accuracy   = fs.Float64("accuracy", 0, "location accuracy in meters")
		hasLoc     = false
		region     = fs.String("region", "", "administrative region")
		district   = fs.String("district", "", "district")
		severity   = fs.String("severity", "", "low|medium|high|critical")
		kind       = fs.String("type", "", "illegal_mining|water_pollution|deforestation|land_degradation")
		reporter   = fs.String("reporter", "", "reporter name")
		phone      = fs.String("phone", "", "contact phone")
		transcript = fs.String("transcript", "", "voice transcript text")
		language   = fs.String("language", "", "transcript language tag")
		voicePath  = fs.String("voice", "", "audio file to transcribe into the report")
		jsonOut    = fs.Bool("json", false, "output JSON")
	)
	var evidencePaths stringSlice
	fs.Var(&evidencePaths, "evidence", "evidence file (repeatable)")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lng" {
			hasLoc = true
		}
	})

	form := composer.Form{
		Title:           *title,
		Description:     *desc,
		Region:          *region,
		District:        *district,
		Severity:        model.Severity(*severity),
		IncidentType:    model.IncidentType(*kind),
		ReportedBy:      *reporter,
		ContactPhone:    *phone,
		VoiceTranscript: *transcript,
		Language:        *language,
	}
	if hasLoc {
		la, ln := *lat, *lng
		form.Latitude, form.Longitude = &la, &ln
	}
	if *accuracy > 0 {
		acc := *accuracy
		form.Accuracy = &acc
	}
	for _, path := range evidencePaths {
		raw, err := loadEvidence(path)
		if err != nil {
			return r.handleErr(err)
		}
		form.Evidence = append(form.Evidence, raw)
	}

	st, err := r.openStore(ctx)
	if err != nil {
		// Store failure degrades to online-only submission.
		_, _ = fmt.Fprintf(r.errOut, "warning: offline queue unavailable: %v\n", err)
		st = nil
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	client := remote.New(r.cfg.RemoteBaseURL)
	codec := media.NewCodec(r.log)
	comp := composer.New(st, codec, client, func() bool {
		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
		return client.Reachable(probeCtx)
	}, r.cfg.DraftDebounce, r.log)
	comp.SetNavigateDelay(r.cfg.NavigateDelay)

	if *voicePath != "" {
		audio, err := loadEvidence(*voicePath)
		if err != nil {
			return r.handleErr(err)
		}
		tr, err := capability.NewCommandTranscriber()
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut, "warning: %v\n", err)
		} else {
			comp.SetTranscriber(tr)
			if err := comp.Dictate(ctx, &form, audio); err != nil {
				_, _ = fmt.Fprintf(r.errOut, "warning: dictation failed: %v\n", err)
			}
		}
	}

	outcome, err := comp.Submit(ctx, form)
	if *jsonOut {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(outcome)
	} else if outcome.Message != "" {
		_, _ = fmt.Fprintln(r.out, outcome.Message)
		if outcome.Status == composer.StatusQueued && outcome.PendingCount >= 0 {
			_, _ = fmt.Fprintf(r.out, "pending reports: %d\n", outcome.PendingCount)
		}
	}
	if err != nil {
		var fe composer.FieldErrors
		if errors.As(err, &fe) {
			return 2
		}
		return 1
	}
	if outcome.NavigateAfter > 0 {
		// Hold the confirmation before handing the prompt back.
		select {
		case <-ctx.Done():
		case <-time.After(outcome.NavigateAfter):
		}
	}
	return 0
}

func loadEvidence(path string) (media.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return media.Raw{}, fmt.Errorf("read evidence %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	info, err := os.Stat(path)
	capturedAt := time.Now().UTC()
	if err == nil {
		capturedAt = info.ModTime().UTC()
	}
	return media.Raw{
		Name:       filepath.Base(path),
		MimeType:   mimeType,
		Bytes:      data,
		CapturedAt: capturedAt,
	}, nil
}

func (r *Runner) runPending(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	state := fs.String("state", "", "filter by state: pending|syncing|failed")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	var subs []model.PendingSubmission
	if *state != "" {
		subs, err = st.ListSubmissionsByState(ctx, model.SubmissionState(*state))
	} else {
		subs, err = st.ListPendingSubmissions(ctx)
	}
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		type row struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			State     string    `json:"state"`
			Attempts  int       `json:"attempts"`
			Evidence  int       `json:"evidence"`
			CreatedAt time.Time `json:"created_at"`
			LastError string    `json:"last_error,omitempty"`
		}
		rows := make([]row, len(subs))
		for i, sub := range subs {
			rows[i] = row{
				ID:        sub.ID,
				Title:     sub.Payload.Title,
				State:     string(sub.State),
				Attempts:  sub.Attempts,
				Evidence:  len(sub.Evidence),
				CreatedAt: sub.CreatedAt,
				LastError: sub.LastError,
			}
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)
		return 0
	}
	for _, sub := range subs {
		line := fmt.Sprintf("%s\t%s\t%s\tattempts=%d\tevidence=%d", sub.ID, sub.State, sub.Payload.Title, sub.Attempts, len(sub.Evidence))
		if sub.LastError != "" {
			line += "\t" + sub.LastError
		}
		_, _ = fmt.Fprintln(r.out, line)
	}
	return 0
}

func (r *Runner) runRetry(ctx context.Context, args []string) int {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: fieldkit retry <id>")
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck
	if err := st.ResetFailedSubmission(ctx, args[0]); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "submission %s moved back to pending\n", args[0])
	return 0
}

func (r *Runner) runRemove(ctx context.Context, args []string) int {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: fieldkit rm <id>")
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck
	if err := st.DeletePendingSubmission(ctx, args[0]); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "submission %s deleted\n", args[0])
	return 0
}

func (r *Runner) runDrafts(ctx context.Context, args []string) int {
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	if len(args) > 0 && args[0] == "rm" {
		if len(args) < 2 {
			_, _ = fmt.Fprintln(r.errOut, "usage: fieldkit drafts rm <id>")
			return 2
		}
		if err := st.DeleteDraft(ctx, args[1]); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "draft %s deleted\n", args[1])
		return 0
	}

	fs := flag.NewFlagSet("drafts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	drafts, err := st.ListDrafts(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		type row struct {
			ID             string    `json:"id"`
			Title          string    `json:"title"`
			Evidence       int       `json:"evidence"`
			LastModifiedAt time.Time `json:"last_modified_at"`
		}
		rows := make([]row, len(drafts))
		for i, d := range drafts {
			rows[i] = row{ID: d.ID, Title: d.Payload.Title, Evidence: len(d.Evidence), LastModifiedAt: d.LastModifiedAt}
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)
		return 0
	}
	for _, d := range drafts {
		title := d.Payload.Title
		if title == "" {
			title = "(untitled)"
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\tevidence=%d\t%s\n", d.ID, title, len(d.Evidence), d.LastModifiedAt.Format(time.RFC3339))
	}
	return 0
}

func (r *Runner) runSync(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	client := remote.New(r.cfg.RemoteBaseURL)
	sync := syncer.New(st, media.NewCodec(r.log), client, func() bool {
		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
		return client.Reachable(probeCtx)
	}, r.cfg.MaxSyncAttempts, r.cfg.SyncPacing, r.cfg.SyncInterval, r.log)

	result, err := sync.Sync(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "synced=%d failed=%d\n", result.Synced, result.Failed)
	for _, e := range result.Errors {
		_, _ = fmt.Fprintf(r.errOut, "  %s\n", e)
	}
	if !result.Success {
		return 1
	}
	return 0
}

func (r *Runner) runRefresh(ctx context.Context, args []string) int {
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	client := remote.New(r.cfg.RemoteBaseURL)
	incidents, err := client.FetchIncidents(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if err := st.ReplaceCachedIncidents(ctx, incidents); err != nil {
		return r.handleErr(err)
	}
	water, err := client.FetchWaterReadings(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if err := st.ReplaceCachedWaterReadings(ctx, water); err != nil {
		return r.handleErr(err)
	}
	sites, err := client.FetchMiningSites(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if err := st.ReplaceCachedMiningSites(ctx, sites); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "cached %d incidents, %d water readings, %d mining sites\n", len(incidents), len(water), len(sites))
	return 0
}

func (r *Runner) runIncidents(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("incidents", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	incidents, err := st.CachedIncidents(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(incidents)
		return 0
	}
	for _, inc := range incidents {
		_, _ = fmt.Fprintf(r.out, "%d\t%s\t%s\t%s\t%s\n", inc.ID, inc.Severity, inc.Region, inc.Status, inc.Title)
	}
	return 0
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}

	type statusOut struct {
		Daemon         string `json:"daemon"`
		Generation     string `json:"generation,omitempty"`
		Active         bool   `json:"active"`
		UpstreamOnline bool   `json:"upstream_online"`
		CachedEntries  int64  `json:"cached_entries"`
		Pending        int    `json:"pending"`
		Drafts         int    `json:"drafts"`
	}
	out := statusOut{Daemon: "unreachable"}

	dc := daemonclient.New(r.cfg.ListenAddr)
	if status, err := dc.Status(ctx); err == nil {
		out.Daemon = "running"
		out.Generation = status.Generation
		out.Active = status.Active
		out.UpstreamOnline = status.UpstreamOnline
		out.CachedEntries = status.CachedEntries
	}
	if st, err := r.openStore(ctx); err == nil {
		if n, err := st.CountPendingSubmissions(ctx); err == nil {
			out.Pending = n
		}
		if drafts, err := st.ListDrafts(ctx); err == nil {
			out.Drafts = len(drafts)
		}
		st.Close() //nolint:errcheck
	}

	if *jsonOut {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "daemon: %s\n", out.Daemon)
	if out.Daemon == "running" {
		_, _ = fmt.Fprintf(r.out, "generation: %s (active=%t)\n", out.Generation, out.Active)
		_, _ = fmt.Fprintf(r.out, "upstream online: %t\n", out.UpstreamOnline)
		_, _ = fmt.Fprintf(r.out, "cached entries: %d\n", out.CachedEntries)
	}
	_, _ = fmt.Fprintf(r.out, "pending reports: %d\n", out.Pending)
	_, _ = fmt.Fprintf(r.out, "drafts: %d\n", out.Drafts)
	return 0
}

func (r *Runner) runWatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output raw JSON lines")
	once := fs.Bool("once", false, "exit when the stream closes instead of reconnecting")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	dc := daemonclient.New(r.cfg.ListenAddr)
	err := dc.WatchLoop(ctx, daemonclient.WatchLoopOptions{Once: *once}, func(msg model.Message) error {
		if *jsonOut {
			line, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(r.out, string(line))
			return nil
		}
		at := time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(r.out, "%s\t%s\n", at, msg.Type)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return r.handleErr(err)
	}
	return 0
}

// runAgent is the long-lived foreground loop: a periodic synchronizer plus
// the interceptor message stream. Captured writes become queued submissions
// here, never inside the daemon.
func (r *Runner) runAgent(ctx context.Context, args []string) int {
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck

	client := remote.New(r.cfg.RemoteBaseURL)
	codec := media.NewCodec(r.log)
	online := func() bool {
		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
		return client.Reachable(probeCtx)
	}
	sync := syncer.New(st, codec, client, online, r.cfg.MaxSyncAttempts, r.cfg.SyncPacing, r.cfg.SyncInterval, r.log)
	comp := composer.New(st, codec, client, online, r.cfg.DraftDebounce, r.log)

	subID, events := sync.Subscribe()
	defer sync.Unsubscribe(subID)
	go func() {
		for ev := range events {
			if ev.Type == "complete" && ev.Result != nil {
				r.log.WithFields(logrus.Fields{"synced": ev.Result.Synced, "failed": ev.Result.Failed}).Info("sync pass complete")
			}
		}
	}()

	go sync.RunLoop(ctx)

	dc := daemonclient.New(r.cfg.ListenAddr)
	err = dc.WatchLoop(ctx, daemonclient.WatchLoopOptions{}, func(msg model.Message) error {
		switch msg.Type {
		case model.MsgOfflineIncidentQueued:
			payload, err := msg.CapturedPayload()
			if err != nil {
				r.log.WithError(err).Warn("captured payload invalid, dropping")
				return nil
			}
			outcome, err := comp.QueueCaptured(ctx, payload)
			if err != nil {
				r.log.WithError(err).Error("queue captured report")
				return nil
			}
			r.log.WithFields(logrus.Fields{
				"id":       outcome.SubmissionID,
				"pending":  outcome.PendingCount,
				"title":    payload.Title,
				"reporter": security.RedactReporter(payload.ReportedBy),
			}).Info("captured report queued")
		case model.MsgSyncOfflineIncidents:
			sync.Trigger()
		case model.MsgGenerationAdopted:
			r.log.WithField("generation", msg.Generation).Info("interceptor generation adopted")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) runCapabilities(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("capabilities", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	report := capability.Probe(ctx, r.cfg.ListenAddr)
	if *jsonOut {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return 0
	}
	_, _ = fmt.Fprintf(r.out, "speech: %s\ngeolocation: %s\ninterceptor: %s\n", report.Speech, report.Geolocation, report.Interceptor)
	return 0
}

func (r *Runner) runClear(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "confirm deletion of all local data")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if !*yes {
		_, _ = fmt.Fprintln(r.errOut, "refusing to wipe local data without --yes")
		return 2
	}
	st, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer st.Close() //nolint:errcheck
	if err := st.ClearAll(ctx); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "local data cleared")
	return 0
}

func (r *Runner) handleErr(err error) int {
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}
