package db

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a safe-base seed file:
//
//	safe_bases:
//	  - id: BASE_SHOLI
//	    name: Sholinganallur Relief Camp
//	    lat: 12.8296
//	    lon: 80.2270
//	    capacity: 100
//	    filled: 10
type SeedFile struct {
	SafeBases []*SafeBase `yaml:"safe_bases"`
}

// LoadSafeBases reads and validates a seed file.
func LoadSafeBases(path string) ([]*SafeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(seed.SafeBases))
	for i, b := range seed.SafeBases {
		if b.ID == "" {
			return nil, fmt.Errorf("safe base %d: missing id", i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("safe base %s: duplicate id", b.ID)
		}
		if b.Capacity < 0 || b.Filled < 0 {
			return nil, fmt.Errorf("safe base %s: capacity and filled must be >= 0", b.ID)
		}
		seen[b.ID] = true
	}

	return seed.SafeBases, nil
}

// SafeBaseWriter is satisfied by both repositories.
type SafeBaseWriter interface {
	UpsertSafeBase(ctx context.Context, b *SafeBase) error
}

// Seed upserts every base into w.
func Seed(ctx context.Context, w SafeBaseWriter, bases []*SafeBase, logger *zap.Logger) error {
	for _, b := range bases {
		if err := w.UpsertSafeBase(ctx, b); err != nil {
			return fmt.Errorf("seed %s: %w", b.ID, err)
		}
	}
	logger.Info("safe bases seeded", zap.Int("count", len(bases)))
	return nil
}
