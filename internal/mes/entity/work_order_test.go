package entity

import (
	"errors"
	"testing"
	"time"
)

func TestNewWorkOrder(t *testing.T) {
	tests := []struct {
		name        string
		productCode string
		targetQty   int
		wantErr     bool
	}{
		{"valid", "WIDGET", 5, false},
		{"trimmed_code", "  WIDGET ", 1, false},
		{"zero_target", "WIDGET", 0, true},
		{"negative_target", "WIDGET", -3, true},
		{"blank_product", "   ", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wo, err := NewWorkOrder(tt.productCode, tt.targetQty, "sup-1")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if wo.Status != WOStatusWaiting || wo.CurrentQty != 0 {
				t.Errorf("new order = %s/%d, want WAITING/0", wo.Status, wo.CurrentQty)
			}
			if wo.ProductCode != "WIDGET" {
				t.Errorf("product code = %q, want WIDGET", wo.ProductCode)
			}
			if wo.AssignedMachineID != nil {
				t.Errorf("new order should have no machine")
			}
		})
	}
}

func TestWorkOrderBindMachine(t *testing.T) {
	wo, _ := NewWorkOrder("WIDGET", 2, "")
	now := time.Now()

	bound, err := wo.BindMachine("M1", now)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if bound.Status != WOStatusInProgress || bound.MachineID() != "M1" {
		t.Errorf("bound = %s/%s, want IN_PROGRESS/M1", bound.Status, bound.MachineID())
	}
	if wo.Status != WOStatusWaiting {
		t.Errorf("original value must not change, got %s", wo.Status)
	}

	if _, err := bound.BindMachine("M2", now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("rebinding an in-progress order should fail, got %v", err)
	}
	if _, err := wo.BindMachine(" ", now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank machine should fail, got %v", err)
	}
}

func TestWorkOrderAdvanceProgress(t *testing.T) {
	wo, _ := NewWorkOrder("WIDGET", 3, "")
	now := time.Now()

	if _, err := wo.AdvanceProgress(now); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("advancing a waiting order should fail, got %v", err)
	}

	cur, _ := wo.BindMachine("M1", now)
	wantStatus := []string{WOStatusInProgress, WOStatusInProgress, WOStatusCompleted}
	for i, want := range wantStatus {
		next, err := cur.AdvanceProgress(now)
		if err != nil {
			t.Fatalf("advance %d: %v", i+1, err)
		}
		if next.CurrentQty != i+1 {
			t.Errorf("advance %d: current = %d", i+1, next.CurrentQty)
		}
		if next.Status != want {
			t.Errorf("advance %d: status = %s, want %s", i+1, next.Status, want)
		}
		cur = next
	}
	if cur.CompletedAt == nil {
		t.Errorf("completed order should record completion time")
	}
	if _, err := cur.AdvanceProgress(now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("advancing a completed order should fail, got %v", err)
	}
}
