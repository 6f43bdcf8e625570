package telemetry

import (
	"context"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestNewInstruments(t *testing.T) {
	inst, err := NewInstruments()
	if err != nil {
		t.Fatalf("NewInstruments() error = %v", err)
	}
	inst.ToolCalls.Add(context.Background(), 1)
	inst.TurnRounds.Record(context.Background(), 2)
	if Tracer() == nil {
		t.Error("Tracer() returned nil")
	}
}
