package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
)

func TestReceive_CreatesAndAccumulates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m, err := env.svc.Inventory.Receive(ctx, InboundRequest{Code: "BOLT", Name: "Bolt M6", Amount: 10}, "u1")
	if err != nil {
		t.Fatalf("first receive: %v", err)
	}
	if m.CurrentStock != 10 || m.Name != "Bolt M6" {
		t.Errorf("material = %+v, want Bolt M6 x10", m)
	}

	m, err = env.svc.Inventory.Receive(ctx, InboundRequest{Code: "BOLT", Name: "ignored", Amount: 5}, "u1")
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if m.CurrentStock != 15 {
		t.Errorf("stock = %d, want 15", m.CurrentStock)
	}
	if m.Name != "Bolt M6" {
		t.Errorf("name changed to %q", m.Name)
	}

	mvs, err := env.svc.Inventory.ListMovements(ctx, "BOLT", 0)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(mvs) != 2 || mvs[0].Quantity != 5 || mvs[0].StockAfter != 15 || mvs[0].MovementType != entity.MovementReceipt {
		t.Errorf("movements = %+v", mvs)
	}

	types := env.events.Types()
	if len(types) != 2 || types[0] != eventbus.EventMaterialReceived {
		t.Errorf("events = %v", types)
	}
}

func TestReceive_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		req  InboundRequest
	}{
		{"zero amount", InboundRequest{Code: "BOLT", Amount: 0}},
		{"negative amount", InboundRequest{Code: "BOLT", Amount: -3}},
		{"blank code", InboundRequest{Code: "  ", Amount: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Inventory.Receive(context.Background(), tt.req, "")
			if !errors.Is(err, entity.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	items, _ := env.svc.Inventory.ListMaterials(context.Background())
	if len(items) != 0 {
		t.Errorf("materials created on invalid input: %+v", items)
	}
}

func TestReceive_RejectsStockOverflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Inventory.Receive(ctx, InboundRequest{Code: "BOLT", Amount: math.MaxInt}, "u1")
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Fatalf("huge amount: expected ErrInvalidInput, got %v", err)
	}

	env.receive(t, "BOLT", entity.MaxStock-1)
	_, err = env.svc.Inventory.Receive(ctx, InboundRequest{Code: "BOLT", Amount: 2}, "u1")
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Fatalf("overflowing receipt: expected ErrInvalidInput, got %v", err)
	}
	if got := env.stock(t, "BOLT"); got != entity.MaxStock-1 {
		t.Errorf("stock = %d, want %d", got, entity.MaxStock-1)
	}

	mvs, _ := env.svc.Inventory.ListMovements(ctx, "BOLT", 0)
	if len(mvs) != 1 {
		t.Errorf("movements = %d, rejected receipt must not be recorded", len(mvs))
	}
}

func TestReceive_ConcurrentReceiptsCommute(t *testing.T) {
	env := newTestEnv(t)
	amounts := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	var wg sync.WaitGroup
	for _, a := range amounts {
		wg.Add(1)
		go func(amount int) {
			defer wg.Done()
			if _, err := env.svc.Inventory.Receive(context.Background(), InboundRequest{Code: "NUT", Amount: amount}, ""); err != nil {
				t.Errorf("receive %d: %v", amount, err)
			}
		}(a)
	}
	wg.Wait()

	if got := env.stock(t, "NUT"); got != 55 {
		t.Errorf("stock = %d, want 55", got)
	}
}

func TestAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, "BOLT", 1)
	env.receive(t, "NUT", 4)
	env.bom(t, "WIDGET", "BOLT", 2)
	env.bom(t, "WIDGET", "NUT", 4)

	av, err := env.svc.Inventory.Availability(context.Background(), "WIDGET")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if av.Feasible {
		t.Error("WIDGET should not be feasible with 1 BOLT")
	}
	if len(av.Items) != 2 || av.Items[0].Sufficient || !av.Items[1].Sufficient {
		t.Errorf("items = %+v", av.Items)
	}

	env.receive(t, "BOLT", 1)
	av, _ = env.svc.Inventory.Availability(context.Background(), "WIDGET")
	if !av.Feasible {
		t.Errorf("WIDGET should be feasible: %+v", av.Items)
	}
	if got := env.stock(t, "BOLT"); got != 2 {
		t.Errorf("availability mutated stock: %d", got)
	}

	av, _ = env.svc.Inventory.Availability(context.Background(), "NO_BOM")
	if !av.Feasible || len(av.Items) != 0 {
		t.Errorf("product without bom = %+v, want feasible and empty", av)
	}
}
