package config

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}(-[A-Z])?(\.[A-Z]{1,3})?$`)

// ValidSymbol reports whether s, already upper-cased, looks like a ticker.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

type universeFile struct {
	Symbols []string `yaml:"symbols"`
}

// LoadUniverse returns the symbols named by u: the entries of u.File (if
// set) followed by u.Symbols, upper-cased, validated and de-duplicated in
// first-seen order. Invalid entries are skipped with a warning.
func LoadUniverse(u UniverseConfig, logger *slog.Logger) ([]string, error) {
	var raw []string
	if u.File != "" {
		fromFile, err := readUniverseFile(u.File)
		if err != nil {
			return nil, err
		}
		raw = append(raw, fromFile...)
	}
	raw = append(raw, u.Symbols...)

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" || seen[sym] {
			continue
		}
		if !ValidSymbol(sym) {
			if logger != nil {
				logger.Warn("skipping invalid symbol", slog.String("symbol", s))
			}
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: universe is empty")
	}
	return out, nil
}

func readUniverseFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read universe %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var f universeFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("config: parse universe %s: %w", path, err)
		}
		return f.Symbols, nil
	default:
		return parseSymbolLines(data), nil
	}
}

// parseSymbolLines reads one symbol per line. '#' starts a comment.
func parseSymbolLines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
