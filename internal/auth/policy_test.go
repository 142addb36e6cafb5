package auth

import (
	"errors"
	"runtime"
	"testing"

	"HoneyHubUsers/internal/domain"
)

func TestPresets(t *testing.T) {
	dev := DevelopmentPolicy()
	if dev.Parallelism() != 1 || dev.Iterations() != 1 || dev.MemoryBytes() != 8*1024 || dev.KeyLength() != 16 {
		t.Fatalf("unexpected development preset: %s", dev)
	}
	if err := dev.Validate(); err != nil {
		t.Fatalf("development preset invalid: %v", err)
	}

	prod := ProductionPolicy()
	if prod.Parallelism() != min(runtime.NumCPU(), 255) || prod.Iterations() != 4 || prod.MemoryBytes() != 64*1024*1024 || prod.KeyLength() != 32 {
		t.Fatalf("unexpected production preset: %s", prod)
	}
	if err := prod.Validate(); err != nil {
		t.Fatalf("production preset invalid: %v", err)
	}
}

func TestNewHashingPolicy_Bounds(t *testing.T) {
	maxPar := min(2*runtime.NumCPU(), 255)

	cases := []struct {
		name                   string
		par, iter, mem, keyLen int
		wantField              string
	}{
		{"zero parallelism", 0, 1, 8192, 16, "parallelism"},
		{"too much parallelism", maxPar + 1, 1, 8192, 16, "parallelism"},
		{"zero iterations", 1, 0, 8192, 16, "iterations"},
		{"too many iterations", 1, 101, 8192, 16, "iterations"},
		{"memory too small", 1, 1, 1023, 16, "memory"},
		{"memory too large", 1, 1, 1<<30 + 1, 16, "memory"},
		{"key too short", 1, 1, 8192, 15, "key_length"},
		{"key too long", 1, 1, 8192, 129, "key_length"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewHashingPolicy(tc.par, tc.iter, tc.mem, tc.keyLen)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.wantField]; !ok {
				t.Fatalf("expected field %q in %v", tc.wantField, verr.Fields)
			}
		})
	}
}

func TestNewHashingPolicy_Edges(t *testing.T) {
	p, err := NewHashingPolicy(1, 100, 1024, 128)
	if err != nil {
		t.Fatalf("NewHashingPolicy: %v", err)
	}
	if p.IsZero() {
		t.Fatalf("expected non-zero policy")
	}
	if _, err := NewHashingPolicy(min(2*runtime.NumCPU(), 255), 1, 1<<30, 16); err != nil {
		t.Fatalf("upper bounds should be accepted: %v", err)
	}
}
