package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gmsas95/meditime/internal/store"
)

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func encodeSnapshot(snap *store.Snapshot, asJSON bool) ([]byte, error) {
	if asJSON {
		return json.MarshalIndent(snap, "", "  ")
	}
	return yaml.Marshal(snap)
}

// decodeSnapshot reads JSON or YAML. YAML goes through JSON so old
// single-medicine records are normalized the same way in both formats.
func decodeSnapshot(data []byte, asJSON bool) (*store.Snapshot, error) {
	if !asJSON {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// HandleExportCommand dumps the whole store to a file, or as YAML to the
// output when no file is given
func HandleExportCommand(ctx context.Context, env *Env, args []string) error {
	snap, err := env.Store.Export(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		data, err := encodeSnapshot(snap, false)
		if err != nil {
			return err
		}
		_, err = env.Out.Write(data)
		return err
	}

	path := args[0]
	data, err := encodeSnapshot(snap, isJSON(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	env.printf("✓ Exported %d user(s) to %s\n", len(snap.Users), path)
	return nil
}

// HandleImportCommand replaces the store contents with a file written by
// export
func HandleImportCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return usage("meditime import <file.yaml|file.json>")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	snap, err := decodeSnapshot(data, isJSON(path))
	if err != nil {
		return err
	}
	if err := env.Store.Import(ctx, snap); err != nil {
		return err
	}
	if err := env.Service.Load(ctx); err != nil {
		return err
	}
	env.printf("✓ Imported %d user(s) from %s\n", len(snap.Users), path)
	return nil
}
