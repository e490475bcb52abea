package round

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pilacorp/go-fedtrust/integrity"
)

// ModelSource yields the local model to contribute for a round.
type ModelSource interface {
	Model(ctx context.Context, round int) ([]byte, error)
}

// ModelSink receives the verified contributions of a round.
type ModelSink interface {
	Deliver(ctx context.Context, round int, contributions []*integrity.Contribution) error
}

// FileModelSource reads the local model from a file the trainer rewrites every round.
type FileModelSource struct {
	Path string
}

func (s FileModelSource) Model(_ context.Context, _ int) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read local model: %w", err)
	}

	return data, nil
}

// FileModelSink writes the accepted payloads of a round as a JSON array of strings.
type FileModelSink struct {
	Path string
}

func (s FileModelSink) Deliver(_ context.Context, _ int, contributions []*integrity.Contribution) error {
	models := make([]string, 0, len(contributions))
	for _, c := range contributions {
		models = append(models, string(c.Payload))
	}

	raw, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}

	// Write then rename so the trainer never reads a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".models-*")
	if err != nil {
		return fmt.Errorf("write models: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write models: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write models: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("write models: %w", err)
	}

	return nil
}
