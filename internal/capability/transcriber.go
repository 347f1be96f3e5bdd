package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/galamseywatch/fieldkit/internal/media"
)

// ErrSpeechUnavailable is returned when no usable speech command is wired.
var ErrSpeechUnavailable = errors.New("speech transcription unavailable")

// CommandTranscriber delegates speech-to-text to the external command
// named by FIELDKIT_SPEECH_CMD: audio on stdin, transcript on stdout,
// optional language tag as the first argument.
type CommandTranscriber struct {
	cmd string
}

func NewCommandTranscriber() (*CommandTranscriber, error) {
	if Speech() != Available {
		return nil, ErrSpeechUnavailable
	}
	return &CommandTranscriber{cmd: os.Getenv(SpeechCommandEnv)}, nil
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, audio media.Raw, language string) (string, error) {
	var args []string
	if language != "" {
		args = append(args, language)
	}
	cmd := exec.CommandContext(ctx, t.cmd, args...)
	cmd.Stdin = bytes.NewReader(audio.Bytes)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("speech command: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
