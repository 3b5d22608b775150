package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter"
	"skirmish.gg/internal/sim/tuning"
)

func generate(t *testing.T, seed int64) (*encounter.Layout, *catalogs.Catalogs) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tun, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	g, err := encounter.NewLayoutGenerator(cats.Templates.Defs, tun.Arena)
	if err != nil {
		t.Fatalf("NewLayoutGenerator: %v", err)
	}
	return g.Generate(seed), cats
}

func TestLayoutSnapshot_RoundTrip(t *testing.T) {
	l, cats := generate(t, 12345)
	rec := &Recorder{Dir: t.TempDir(), TemplatesDigest: cats.Templates.Digest, TuningDigest: "tun"}
	if err := rec.RecordLayout("run-1", l); err != nil {
		t.Fatalf("RecordLayout: %v", err)
	}

	path := rec.PathFor("run-1")
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Version != Version || h.RunID != "run-1" || h.Seed != 12345 || h.Digest != l.Digest() {
		t.Fatalf("header=%+v", h)
	}

	snap, err := ReadLayout(path)
	if err != nil {
		t.Fatalf("ReadLayout: %v", err)
	}
	if snap.Layout.Digest() != l.Digest() {
		t.Fatalf("layout changed across the round trip")
	}
	if snap.TemplatesDigest != cats.Templates.Digest || snap.TuningDigest != "tun" {
		t.Fatalf("digests=%s/%s", snap.TemplatesDigest, snap.TuningDigest)
	}
}

func TestReadLayout_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.layout.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadLayout(path); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ReadLayout(filepath.Join(t.TempDir(), "missing")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestRecorder_NilLayout(t *testing.T) {
	rec := &Recorder{Dir: t.TempDir()}
	if err := rec.RecordLayout("run-x", nil); err == nil {
		t.Fatalf("expected error")
	}
}
