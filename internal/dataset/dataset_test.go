package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xor.csv")
	if err := Write(path, XOR()); err != nil {
		t.Fatalf("write: %v", err)
	}

	samples, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}
	if len(samples[0].Input) != 2 || len(samples[0].Output) != 1 {
		t.Fatalf("shape %dx%d, want 2x1", len(samples[0].Input), len(samples[0].Output))
	}
	if samples[3].Input[0] != 1 || samples[3].Output[0] != 0 {
		t.Fatalf("last sample mismatch: %+v", samples[3])
	}
}

func TestLoadRejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("x,out_0\n1,0\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown column name")
	}

	if err := os.WriteFile(path, []byte("out_0,in_0\n1,0\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for input column after outputs")
	}
}

func TestLoadRejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.csv")
	if err := os.WriteFile(path, []byte("in_0,out_0\n1\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestSineStaysInUnitRange(t *testing.T) {
	samples := Sine(50, 7)
	if len(samples) != 50 {
		t.Fatalf("got %d samples, want 50", len(samples))
	}
	for i, s := range samples {
		if s.Input[0] < 0 || s.Input[0] > 1 || s.Output[0] < 0 || s.Output[0] > 1 {
			t.Fatalf("sample %d out of unit range: %+v", i, s)
		}
	}
}

func TestBuiltinLookup(t *testing.T) {
	if _, ok := Builtin("xor", 0); !ok {
		t.Fatal("xor builtin missing")
	}
	if _, ok := Builtin("mnist", 0); ok {
		t.Fatal("unexpected builtin")
	}
}
