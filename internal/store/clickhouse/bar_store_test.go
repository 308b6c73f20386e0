package clickhouse

import (
	"context"
	"strings"
	"testing"
)

func TestOpenRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []Config{
		{Database: "swing; DROP", Table: "bars"},
		{Database: "swingbot", Table: "bars where 1=1"},
		{Database: "1db", Table: "bars"},
	}
	for _, cfg := range tests {
		_, err := Open(context.Background(), cfg)
		if err == nil || !strings.Contains(err.Error(), "invalid database or table") {
			t.Fatalf("Open(%q.%q) err = %v", cfg.Database, cfg.Table, err)
		}
	}
}
