package staticcatalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.json")
	body := `[{"MarketID":"m1","Slug":"will-it-rain","YesTokenID":"y1","NoTokenID":"n1"}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	markets, err := src.ListMarkets(context.Background(), "15m")
	if err != nil || len(markets) != 1 {
		t.Fatalf("ListMarkets: %v, %+v", err, markets)
	}

	m, err := src.MarketBySlug(context.Background(), "will-it-rain")
	if err != nil || m == nil || m.MarketID != "m1" {
		t.Fatalf("MarketBySlug: %v, %+v", err, m)
	}

	if m, _ := src.MarketBySlug(context.Background(), "unknown"); m != nil {
		t.Fatalf("expected nil for unknown slug, got %+v", m)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
