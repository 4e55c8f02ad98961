package config

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/Guilhem-Bonnet/signage-agent/internal/infra/fsx"
)

// WriteKey enregistre une nouvelle clé API dans le fichier de config.
// Les autres champs du fichier sont conservés tels quels.
func WriteKey(path, key string) error {
	if path == "" {
		path = DefaultPath()
	}
	doc := map[string]any{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(b) > 0 {
			if err := json.Unmarshal(b, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	doc["key"] = key
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, append(out, '\n'), 0o600)
}
