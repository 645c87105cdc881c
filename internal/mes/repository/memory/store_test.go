package memory

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

func seedMaterial(t *testing.T, s *Store, code string, stock int) *entity.Material {
	t.Helper()
	m := &entity.Material{Code: code, Name: code, CurrentStock: stock}
	err := s.InTx(context.Background(), func(tx repository.Tx) error {
		return tx.Materials().Create(context.Background(), m)
	})
	if err != nil {
		t.Fatalf("seed material %s: %v", code, err)
	}
	return m
}

func TestInTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 10)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Materials().DeductStock(ctx, bolt.ID, 4); err != nil {
			return err
		}
		if err := tx.Movements().Create(ctx, &entity.StockMovement{MaterialID: bolt.ID, Quantity: -4}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Materials().FindByCode(ctx, "BOLT")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if m.CurrentStock != 10 {
			t.Errorf("stock after rollback = %d, want 10", m.CurrentStock)
		}
		mvs, _ := tx.Movements().ListByMaterial(ctx, bolt.ID, 0)
		if len(mvs) != 0 {
			t.Errorf("movements after rollback = %d, want 0", len(mvs))
		}
		return nil
	})
}

func TestInTx_CopiesOnlyWrittenTables(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 10)
	wo, _ := entity.NewWorkOrder("WIDGET", 1, "sup")
	if err := s.InTx(ctx, func(tx repository.Tx) error { return tx.WorkOrders().Create(ctx, wo) }); err != nil {
		t.Fatalf("create order: %v", err)
	}

	mapID := func(m interface{}) uintptr { return reflect.ValueOf(m).Pointer() }
	materials, orders := mapID(s.state.materials), mapID(s.state.orders)

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Materials().FindByCode(ctx, "BOLT")
		return err
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mapID(s.state.materials) != materials || mapID(s.state.orders) != orders {
		t.Fatal("read-only transaction copied state")
	}

	err = s.InTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.WorkOrders().LockByID(ctx, wo.ID)
		if err != nil {
			return err
		}
		next, err := locked.BindMachine("M1", locked.CreatedAt)
		if err != nil {
			return err
		}
		return tx.WorkOrders().Update(ctx, &next, entity.WOStatusWaiting)
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if mapID(s.state.orders) == orders {
		t.Error("written table shared with previous state")
	}
	if mapID(s.state.materials) != materials {
		t.Error("untouched table copied")
	}
	if s.state.materials[bolt.ID].CurrentStock != 10 {
		t.Errorf("stock = %d", s.state.materials[bolt.ID].CurrentStock)
	}
}

func TestInTx_RolledBackAppendDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 10)
	record := func(qty int, fail error) error {
		return s.InTx(ctx, func(tx repository.Tx) error {
			if err := tx.Movements().Create(ctx, &entity.StockMovement{MaterialID: bolt.ID, Quantity: qty}); err != nil {
				return err
			}
			return fail
		})
	}

	for i := 1; i <= 3; i++ {
		if err := record(i, nil); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	committed := s.state
	boom := errors.New("boom")
	if err := record(-100, boom); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	// 回滚的写入不能落进已提交切片的备用容量
	for _, mv := range committed.movements[:cap(committed.movements)] {
		if mv.Quantity == -100 {
			t.Fatal("rolled back movement written into committed backing array")
		}
	}
	if err := record(4, nil); err != nil {
		t.Fatalf("record 4: %v", err)
	}

	want := []int{1, 2, 3, 4}
	if len(s.state.movements) != len(want) {
		t.Fatalf("movements = %d, want %d", len(s.state.movements), len(want))
	}
	for i, mv := range s.state.movements {
		if mv.Quantity != want[i] {
			t.Errorf("movement %d qty = %d, want %d", i, mv.Quantity, want[i])
		}
	}
}

func TestInTx_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, func(tx repository.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("callback must not run on a canceled context")
	}
}

func TestMaterials_DeductStock(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 3)

	tests := []struct {
		name    string
		qty     int
		wantErr error
		want    int
	}{
		{"partial", 2, nil, 1},
		{"over stock", 2, repository.ErrInsufficientStock, 1},
		{"exact", 1, nil, 0},
		{"empty", 1, repository.ErrInsufficientStock, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx repository.Tx) error {
				_, err := tx.Materials().DeductStock(ctx, bolt.ID, tt.qty)
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			_ = s.InTx(ctx, func(tx repository.Tx) error {
				m, _ := tx.Materials().FindByCode(ctx, "BOLT")
				if m.CurrentStock != tt.want {
					t.Errorf("stock = %d, want %d", m.CurrentStock, tt.want)
				}
				return nil
			})
		})
	}
}

func TestMaterials_AddStockUpperBound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 0)

	tests := []struct {
		name    string
		amount  int
		wantErr error
		want    int
	}{
		{"to limit", entity.MaxStock - 1, nil, entity.MaxStock - 1},
		{"past limit", 2, repository.ErrStockOverflow, entity.MaxStock - 1},
		{"exact limit", 1, nil, entity.MaxStock},
		{"huge amount", math.MaxInt, repository.ErrStockOverflow, entity.MaxStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx repository.Tx) error {
				_, err := tx.Materials().AddStock(ctx, bolt.ID, tt.amount)
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			_ = s.InTx(ctx, func(tx repository.Tx) error {
				m, _ := tx.Materials().FindByCode(ctx, "BOLT")
				if m.CurrentStock != tt.want || m.CurrentStock < 0 {
					t.Errorf("stock = %d, want %d", m.CurrentStock, tt.want)
				}
				return nil
			})
		})
	}
}

func TestMaterials_CreateDuplicateCode(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedMaterial(t, s, "BOLT", 0)
	err := s.InTx(ctx, func(tx repository.Tx) error {
		return tx.Materials().Create(ctx, &entity.Material{Code: "BOLT", Name: "dup"})
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBOMs_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bolt := seedMaterial(t, s, "BOLT", 10)
	nut := seedMaterial(t, s, "NUT", 5)

	err := s.InTx(ctx, func(tx repository.Tx) error {
		for _, line := range []*entity.BOMLine{
			{ProductCode: "WIDGET", MaterialID: bolt.ID, RequiredQty: 2},
			{ProductCode: "WIDGET", MaterialID: nut.ID, RequiredQty: 1},
			{ProductCode: "WIDGET", MaterialID: bolt.ID, RequiredQty: 3},
		} {
			if err := tx.BOMs().Upsert(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_ = s.InTx(ctx, func(tx repository.Tx) error {
		lines, err := tx.BOMs().ListByProduct(ctx, "WIDGET")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("lines = %d, want 2", len(lines))
		}
		if lines[0].Material == nil || lines[0].Material.Code != "BOLT" || lines[0].RequiredQty != 3 {
			t.Errorf("first line = %+v, want BOLT x3", lines[0])
		}
		if lines[1].Material == nil || lines[1].Material.Code != "NUT" {
			t.Errorf("second line material = %+v, want NUT", lines[1].Material)
		}
		return nil
	})

	err = s.InTx(ctx, func(tx repository.Tx) error {
		return tx.BOMs().Upsert(ctx, &entity.BOMLine{ProductCode: "WIDGET", MaterialID: 999, RequiredQty: 1})
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown material: expected ErrNotFound, got %v", err)
	}
}

func TestWorkOrders_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var first, second *entity.WorkOrder
	_ = s.InTx(ctx, func(tx repository.Tx) error {
		first, _ = entity.NewWorkOrder("WIDGET", 2, "")
		second, _ = entity.NewWorkOrder("WIDGET", 2, "")
		_ = tx.WorkOrders().Create(ctx, first)
		return tx.WorkOrders().Create(ctx, second)
	})

	err := s.InTx(ctx, func(tx repository.Tx) error {
		oldest, err := tx.WorkOrders().LockOldestWaiting(ctx)
		if err != nil {
			return err
		}
		if oldest.ID != first.ID {
			t.Errorf("oldest = %d, want %d", oldest.ID, first.ID)
		}
		bound, err := oldest.BindMachine("M1", oldest.CreatedAt)
		if err != nil {
			return err
		}
		return tx.WorkOrders().Update(ctx, &bound, entity.WOStatusWaiting)
	})
	if err != nil {
		t.Fatalf("bind first: %v", err)
	}

	// stale status
	err = s.InTx(ctx, func(tx repository.Tx) error {
		stale := *first
		stale.CurrentQty = 1
		return tx.WorkOrders().Update(ctx, &stale, entity.WOStatusWaiting)
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("stale update: expected ErrConflict, got %v", err)
	}

	// same machine cannot run two orders
	err = s.InTx(ctx, func(tx repository.Tx) error {
		bound, _ := second.BindMachine("M1", second.CreatedAt)
		return tx.WorkOrders().Update(ctx, &bound, entity.WOStatusWaiting)
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("double machine: expected ErrConflict, got %v", err)
	}

	_ = s.InTx(ctx, func(tx repository.Tx) error {
		wo, err := tx.WorkOrders().FindInProgressByMachine(ctx, "M1")
		if err != nil || wo.ID != first.ID {
			t.Errorf("in progress on M1 = %v, %v; want order %d", wo, err, first.ID)
		}
		if _, err := tx.WorkOrders().FindInProgressByMachine(ctx, "M2"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("M2: expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestWorkOrders_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.InTx(ctx, func(tx repository.Tx) error {
		for i := 0; i < 5; i++ {
			wo, _ := entity.NewWorkOrder("WIDGET", 1, "")
			if err := tx.WorkOrders().Create(ctx, wo); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.InTx(ctx, func(tx repository.Tx) error {
		items, total, err := tx.WorkOrders().List(ctx, repository.WOListParams{Page: 2, Size: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
		if len(items) != 2 || items[0].ID != 3 || items[1].ID != 2 {
			t.Errorf("page 2 = %+v, want ids 3,2", items)
		}
		items, _, _ = tx.WorkOrders().List(ctx, repository.WOListParams{Status: entity.WOStatusCompleted})
		if len(items) != 0 {
			t.Errorf("completed = %d, want 0", len(items))
		}
		return nil
	})
}

func TestProductionLogs_RecentWithOperator(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	err := s.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Operators().Save(ctx, &entity.Operator{ID: "u1", Name: "Alice"}); err != nil {
			return err
		}
		wo, _ := entity.NewWorkOrder("WIDGET", 3, "")
		if err := tx.WorkOrders().Create(ctx, wo); err != nil {
			return err
		}
		opID := "u1"
		for i, op := range []*string{&opID, nil, &opID} {
			log := &entity.ProductionLog{
				WorkOrderID: wo.ID,
				ProductCode: "WIDGET",
				MachineID:   "M1",
				SerialNo:    string(rune('A' + i)),
				Result:      entity.ResultOK,
				OperatorID:  op,
			}
			if err := tx.ProductionLogs().Create(ctx, log); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = s.InTx(ctx, func(tx repository.Tx) error {
		logs, err := tx.ProductionLogs().ListRecent(ctx, 2)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(logs) != 2 {
			t.Fatalf("recent = %d, want 2", len(logs))
		}
		if logs[0].SerialNo != "C" || logs[0].OperatorName() != "Alice" {
			t.Errorf("newest = %s/%s, want C/Alice", logs[0].SerialNo, logs[0].OperatorName())
		}
		if logs[1].SerialNo != "B" || logs[1].OperatorName() != entity.AnonymousOperatorName {
			t.Errorf("second = %s/%s, want B/system", logs[1].SerialNo, logs[1].OperatorName())
		}
		return nil
	})

	err = s.InTx(ctx, func(tx repository.Tx) error {
		return tx.ProductionLogs().Create(ctx, &entity.ProductionLog{WorkOrderID: 42})
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown order: expected ErrNotFound, got %v", err)
	}
}
