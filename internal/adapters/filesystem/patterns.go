package filesystem

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// patternsFile is the ignored-patterns document. JSON parses as YAML, so
// both formats load.
type patternsFile struct {
	IgnoredPatterns []string `yaml:"ignoredPatterns"`
}

// LoadIgnoredPatterns reads the label patterns that exclude transactions
// from matching. A missing or malformed file is logged and yields an
// empty list.
func LoadIgnoredPatterns(path string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return []string{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to load ignored patterns", "path", path, "error", err)
		return []string{}
	}

	var f patternsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		logger.Error("failed to parse ignored patterns", "path", path, "error", err)
		return []string{}
	}

	patterns := make([]string, 0, len(f.IgnoredPatterns))
	for _, p := range f.IgnoredPatterns {
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	logger.Debug("loaded ignored patterns", "path", path, "count", len(patterns))
	return patterns
}
