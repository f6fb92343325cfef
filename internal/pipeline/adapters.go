package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/internal/types"
	"go.aimuz.me/holdtalk/llm"
	"go.aimuz.me/holdtalk/stt"
)

// ─── Transcribe ─────────────────────────────────────────────────────────────

// RecordingTranscriber saves captured PCM as recordings/rec_<uuid>.wav and
// hands the file to an STT provider.
type RecordingTranscriber struct {
	Provider stt.Provider
	Dir      string
	Format   audio.Format
	Language string // empty or "auto" to detect
}

// Transcribe implements Transcriber.
func (t *RecordingTranscriber) Transcribe(ctx context.Context, pcm []byte) (Transcript, error) {
	if !t.Provider.IsReady() {
		return Transcript{}, fmt.Errorf("%s: %w", t.Provider.Name(), stt.ErrNotReady)
	}
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return Transcript{}, fmt.Errorf("create recordings dir: %w", err)
	}

	path := filepath.Join(t.Dir, "rec_"+uuid.NewString()+".wav")
	if err := audio.WriteWAV(path, pcm, t.Format); err != nil {
		return Transcript{}, fmt.Errorf("save recording: %w", err)
	}

	res, err := t.Provider.Transcribe(ctx, path, t.Language)
	if err != nil {
		return Transcript{Recording: path}, err
	}
	return Transcript{Text: res.Text, Language: res.Language, Recording: path}, nil
}

// ─── Generate ───────────────────────────────────────────────────────────────

// CompleterGenerator generates replies with an llm.Completer.
type CompleterGenerator struct {
	Completer llm.Completer
}

// Generate implements Generator.
func (g *CompleterGenerator) Generate(ctx context.Context, req Request) (string, types.Usage, error) {
	return g.Completer.Complete(ctx, req.Messages)
}
