package kernel

import (
	"errors"
	"testing"
	"time"

	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
)

func TestNewEnvelopeAssignsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC()
	env, err := NewEnvelope(TractInternal, "writer", 3, map[string]any{"op": "write"}, PriorityRange{Min: 0, Max: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.ID == "" {
		t.Fatal("expected a generated id")
	}
	if env.Target != "writer" || env.Priority != 3 || env.Tract != TractInternal {
		t.Fatalf("unexpected envelope fields: %+v", env)
	}
	if env.CreatedAt.Before(before) {
		t.Fatalf("created_at %v predates construction", env.CreatedAt)
	}
}

func TestNewEnvelopeRejectsNilPayload(t *testing.T) {
	_, err := NewEnvelope(TractInternal, "writer", 0, nil, PriorityRange{})
	var invalid *errspkg.InvalidEnvelopeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidEnvelopeError, got %v", err)
	}
}

func TestNewEnvelopeRejectsUnserialisablePayload(t *testing.T) {
	_, err := NewEnvelope(TractInternal, "writer", 0, make(chan int), PriorityRange{})
	var invalid *errspkg.InvalidEnvelopeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidEnvelopeError, got %v", err)
	}
}

func TestNewEnvelopePriorityBounds(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		bounds   PriorityRange
		wantErr  bool
	}{
		{name: "inside range", priority: 5, bounds: PriorityRange{Min: 0, Max: 10}},
		{name: "at max", priority: 10, bounds: PriorityRange{Min: 0, Max: 10}},
		{name: "above max", priority: 11, bounds: PriorityRange{Min: 0, Max: 10}, wantErr: true},
		{name: "below min", priority: -1, bounds: PriorityRange{Min: 0, Max: 10}, wantErr: true},
		{name: "zero range accepts anything", priority: 1000, bounds: PriorityRange{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnvelope(TractExternal, "", tt.priority, "payload", tt.bounds)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnvelopeOptions(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := NewEnvelope(TractExternal, "", 1, "x", PriorityRange{},
		WithID("custom-id"),
		WithCorrelationID("corr-1"),
		WithCreatedAt(ts),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.ID != "custom-id" {
		t.Fatalf("expected custom id, got %s", env.ID)
	}
	if env.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id, got %s", env.CorrelationID)
	}
	if !env.CreatedAt.Equal(ts) {
		t.Fatalf("expected created_at %v, got %v", ts, env.CreatedAt)
	}
}

func TestEnvelopeDecodePayload(t *testing.T) {
	env, err := NewEnvelope(TractInternal, "writer", 0, map[string]any{"count": 3}, PriorityRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Count int `json:"count"`
	}
	if err := env.DecodePayload(&decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Count != 3 {
		t.Fatalf("expected count 3, got %d", decoded.Count)
	}
}

func TestEnvelopeBroadcast(t *testing.T) {
	targeted, _ := NewEnvelope(TractInternal, "writer", 0, "x", PriorityRange{})
	broadcast, _ := NewEnvelope(TractInternal, "", 0, "x", PriorityRange{})

	if targeted.Broadcast() {
		t.Fatal("targeted envelope reported as broadcast")
	}
	if !broadcast.Broadcast() {
		t.Fatal("broadcast envelope not reported as broadcast")
	}
}

func TestTractString(t *testing.T) {
	if TractInternal.String() != "internal" || TractExternal.String() != "external" {
		t.Fatal("unexpected tract names")
	}
}
