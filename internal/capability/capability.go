// Package capability probes optional facilities the reporting flow can
// degrade around. Each probe returns a tri-state rather than a bool so
// callers can distinguish "the host cannot do this" from "the host can
// but the operator has not allowed it".
package capability

import (
	"context"
	"net/http"
	"os"
	"time"
)

// State describes the availability of one optional facility.
type State string

const (
	// Unsupported means the facility does not exist on this host.
	Unsupported State = "unsupported"
	// Denied means the facility exists but access was refused.
	Denied State = "denied"
	// Available means the facility can be used right now.
	Available State = "available"
)

// Report is the result of probing every facility at once.
type Report struct {
	Speech      State `json:"speech"`
	Geolocation State `json:"geolocation"`
	Interceptor State `json:"interceptor"`
}

// SpeechCommandEnv names the env var pointing at an external
// speech-to-text command. Voice capture is delegated to it.
const SpeechCommandEnv = "FIELDKIT_SPEECH_CMD"

// GeolocationCommandEnv names the env var pointing at an external
// position-fix command printing "lat lng accuracy".
const GeolocationCommandEnv = "FIELDKIT_GEO_CMD"

// Speech reports whether an external transcription command is wired up.
func Speech() State {
	cmd := os.Getenv(SpeechCommandEnv)
	if cmd == "" {
		return Unsupported
	}
	if _, err := os.Stat(cmd); err != nil {
		if os.IsPermission(err) {
			return Denied
		}
		return Unsupported
	}
	return Available
}

// Geolocation reports whether an external position-fix command is wired up.
func Geolocation() State {
	cmd := os.Getenv(GeolocationCommandEnv)
	if cmd == "" {
		return Unsupported
	}
	if _, err := os.Stat(cmd); err != nil {
		if os.IsPermission(err) {
			return Denied
		}
		return Unsupported
	}
	return Available
}

// Interceptor reports whether the local intermediary daemon is
// reachable at addr. A connection refusal means the daemon is not
// running (Unsupported for the purposes of routing); any HTTP answer,
// even an error status, means it is there.
func Interceptor(ctx context.Context, addr string) State {
	if addr == "" {
		return Unsupported
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/health", nil)
	if err != nil {
		return Unsupported
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Unsupported
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return Denied
	}
	return Available
}

// Probe runs every check and assembles a Report.
func Probe(ctx context.Context, interceptorAddr string) Report {
	return Report{
		Speech:      Speech(),
		Geolocation: Geolocation(),
		Interceptor: Interceptor(ctx, interceptorAddr),
	}
}
