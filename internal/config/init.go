package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrConfigExists is returned by WriteFile when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteFile serializes cfg as YAML and writes it atomically to path.
func WriteFile(cfg Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// Durations would otherwise serialize as nanosecond integers.
	for key, v := range k.All() {
		switch val := v.(type) {
		case Secret:
			_ = k.Set(key, val.Value())
		case time.Duration:
			_ = k.Set(key, val.String())
		}
	}

	data, err := yaml.Parser().Marshal(k.Raw())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFileAtomic(path, data)
}
