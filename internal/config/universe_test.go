package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestValidSymbol(t *testing.T) {
	tests := []struct {
		sym  string
		want bool
	}{
		{"AAPL", true},
		{"BRK-B", true},
		{"BHP.AX", true},
		{"A", true},
		{"TOOLONGX", false},
		{"^GSPC", false},
		{"aapl", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.sym, func(t *testing.T) {
			if got := ValidSymbol(tt.sym); got != tt.want {
				t.Fatalf("ValidSymbol(%q) = %v, want %v", tt.sym, got, tt.want)
			}
		})
	}
}

func TestLoadUniverse(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "symbols.txt")
	yml := filepath.Join(dir, "symbols.yaml")
	if err := os.WriteFile(txt, []byte("# tech\naapl\nMSFT  # software\n\n^GSPC\nbhp.ax\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yml, []byte("symbols:\n  - nvda\n  - AMD\n  - nvda\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		u    UniverseConfig
		want []string
	}{
		{"txt with inline", UniverseConfig{File: txt, Symbols: []string{"msft", "TSLA"}}, []string{"AAPL", "MSFT", "BHP.AX", "TSLA"}},
		{"yaml", UniverseConfig{File: yml}, []string{"NVDA", "AMD"}},
		{"inline only", UniverseConfig{Symbols: []string{"spy", "bad symbol"}}, []string{"SPY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadUniverse(tt.u, nil)
			if err != nil {
				t.Fatalf("LoadUniverse() = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("LoadUniverse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadUniverseErrors(t *testing.T) {
	if _, err := LoadUniverse(UniverseConfig{Symbols: []string{"$$$"}}, nil); err == nil {
		t.Fatal("expected error for empty universe")
	}
	if _, err := LoadUniverse(UniverseConfig{File: filepath.Join(t.TempDir(), "missing.txt")}, nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
