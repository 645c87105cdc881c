package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
)

func report(env *testEnv, orderID int64, machine, result, defect string) (*ReportResult, error) {
	return env.svc.Production.Report(context.Background(), ReportRequest{
		OrderID:    orderID,
		MachineID:  machine,
		Result:     result,
		DefectCode: defect,
	}, "")
}

func TestReport_BoltWidgetScenario(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, "BOLT", 10)
	env.bom(t, "WIDGET", "BOLT", 2)
	wo := env.order(t, "WIDGET", 5)

	assigned := env.assign(t, "M1")
	if assigned == nil || assigned.ID != wo.ID {
		t.Fatalf("assigned = %+v, want order %d", assigned, wo.ID)
	}

	for i := 1; i <= 5; i++ {
		res, err := report(env, wo.ID, "M1", "OK", "")
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if !res.Applied || res.Order.CurrentQty != i {
			t.Errorf("report %d: applied=%v current=%d", i, res.Applied, res.Order.CurrentQty)
		}
	}

	if got := env.stock(t, "BOLT"); got != 0 {
		t.Errorf("BOLT = %d, want 0", got)
	}
	final := env.getOrder(t, wo.ID)
	if final.Status != entity.WOStatusCompleted || final.CurrentQty != 5 || final.CompletedAt == nil {
		t.Errorf("order = %+v, want COMPLETED 5/5", final)
	}
	if n := env.logCount(t, wo.ID); n != 5 {
		t.Errorf("logs = %d, want 5", n)
	}

	mvs, _ := env.svc.Inventory.ListMovements(context.Background(), "BOLT", 0)
	backflushes := 0
	for _, mv := range mvs {
		if mv.MovementType == entity.MovementBackflush {
			backflushes++
			if mv.Quantity != -2 || mv.ReferenceType != entity.RefTypeProductionLog || mv.ReferenceID == 0 {
				t.Errorf("backflush movement = %+v", mv)
			}
		}
	}
	if backflushes != 5 {
		t.Errorf("backflush movements = %d, want 5", backflushes)
	}
}

func TestReport_LifecycleAndNoOpAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	wo := env.order(t, "GADGET", 3)
	env.assign(t, "M1")

	for i, want := range []string{entity.WOStatusInProgress, entity.WOStatusInProgress, entity.WOStatusCompleted} {
		res, err := report(env, wo.ID, "M1", "OK", "")
		if err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
		if res.Order.CurrentQty != i+1 || res.Order.Status != want {
			t.Errorf("after report %d: %d/%s, want %d/%s", i+1, res.Order.CurrentQty, res.Order.Status, i+1, want)
		}
	}

	before := len(env.events.Events())
	res, err := report(env, wo.ID, "M1", "OK", "")
	if err != nil {
		t.Fatalf("report on completed order: %v", err)
	}
	if res.Applied || res.Log != nil {
		t.Errorf("completed order report should be a no-op, got %+v", res)
	}
	if n := env.logCount(t, wo.ID); n != 3 {
		t.Errorf("logs = %d, want 3", n)
	}
	if got := env.getOrder(t, wo.ID); got.CurrentQty != 3 {
		t.Errorf("current = %d, want 3", got.CurrentQty)
	}
	if after := len(env.events.Events()); after != before {
		t.Errorf("no-op published %d events", after-before)
	}
}

func TestReport_ShortageRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, "BOLT", 5)
	env.receive(t, "NUT", 1)
	env.bom(t, "WIDGET", "BOLT", 2)
	env.bom(t, "WIDGET", "NUT", 1)
	wo := env.order(t, "WIDGET", 5)
	env.assign(t, "M1")

	if _, err := report(env, wo.ID, "M1", "OK", ""); err != nil {
		t.Fatalf("first report: %v", err)
	}

	_, err := report(env, wo.ID, "M1", "OK", "")
	if !errors.Is(err, entity.ErrMaterialShortage) {
		t.Fatalf("expected shortage, got %v", err)
	}
	var se *entity.ShortageError
	if !errors.As(err, &se) || se.MaterialName != "NUT" || se.Required != 1 || se.Available != 0 {
		t.Errorf("shortage = %+v", se)
	}
	if !strings.Contains(err.Error(), "NUT") {
		t.Errorf("error message %q should name the material", err.Error())
	}

	// BOLT was decremented before NUT failed; it must be restored
	if got := env.stock(t, "BOLT"); got != 3 {
		t.Errorf("BOLT = %d, want 3", got)
	}
	if got := env.stock(t, "NUT"); got != 0 {
		t.Errorf("NUT = %d, want 0", got)
	}
	if got := env.getOrder(t, wo.ID); got.CurrentQty != 1 || got.Status != entity.WOStatusInProgress {
		t.Errorf("order = %d/%s, want 1/IN_PROGRESS", got.CurrentQty, got.Status)
	}
	if n := env.logCount(t, wo.ID); n != 1 {
		t.Errorf("logs = %d, want 1", n)
	}

	types := env.events.Types()
	if types[len(types)-1] != eventbus.EventMaterialShortage {
		t.Errorf("last event = %s, want %s", types[len(types)-1], eventbus.EventMaterialShortage)
	}
}

func TestReport_NGDoesNotTouchInventory(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, "BOLT", 3)
	env.bom(t, "WIDGET", "BOLT", 2)
	wo := env.order(t, "WIDGET", 2)
	env.assign(t, "M1")

	res, err := report(env, wo.ID, "M1", "ng", "SCRATCH")
	if err != nil {
		t.Fatalf("NG report: %v", err)
	}
	if res.Log.Result != entity.ResultNG || res.Log.DefectCode == nil || *res.Log.DefectCode != "SCRATCH" {
		t.Errorf("log = %+v", res.Log)
	}
	if res.Order.CurrentQty != 1 {
		t.Errorf("NG should still advance progress, current = %d", res.Order.CurrentQty)
	}
	if got := env.stock(t, "BOLT"); got != 3 {
		t.Errorf("BOLT = %d, want 3", got)
	}

	res, err = report(env, wo.ID, "M1", "OK", "IGNORED")
	if err != nil {
		t.Fatalf("OK report: %v", err)
	}
	if res.Log.DefectCode != nil {
		t.Errorf("OK log must drop defect code, got %q", *res.Log.DefectCode)
	}
}

func TestReport_Rejections(t *testing.T) {
	env := newTestEnv(t)
	running := env.order(t, "GADGET", 2)
	env.assign(t, "M1")
	waiting := env.order(t, "GADGET", 2)

	tests := []struct {
		name    string
		req     ReportRequest
		wantErr error
	}{
		{"unknown order", ReportRequest{OrderID: 999, MachineID: "M1", Result: "OK"}, entity.ErrOrderNotFound},
		{"blank machine", ReportRequest{OrderID: running.ID, MachineID: " ", Result: "OK"}, entity.ErrInvalidInput},
		{"unknown result", ReportRequest{OrderID: running.ID, MachineID: "M1", Result: "MAYBE"}, entity.ErrInvalidInput},
		{"NG without defect", ReportRequest{OrderID: running.ID, MachineID: "M1", Result: "NG"}, entity.ErrInvalidInput},
		{"other machine", ReportRequest{OrderID: running.ID, MachineID: "M2", Result: "OK"}, entity.ErrInvalidInput},
		{"waiting order", ReportRequest{OrderID: waiting.ID, MachineID: "M1", Result: "OK"}, entity.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Production.Report(context.Background(), tt.req, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if n := env.logCount(t, running.ID); n != 0 {
		t.Errorf("rejected reports wrote %d logs", n)
	}
	if got := env.getOrder(t, waiting.ID); got.Status != entity.WOStatusWaiting {
		t.Errorf("waiting order status = %s", got.Status)
	}
}

func TestReport_OperatorAndSerial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Operator.Register(ctx, RegisterOperatorRequest{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	wo := env.order(t, "GADGET", 3)
	env.assign(t, "M1")

	res, err := env.svc.Production.Report(ctx, ReportRequest{OrderID: wo.ID, MachineID: "M1", Result: "OK", SerialNo: "SN-001"}, "u1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.Log.SerialNo != "SN-001" || res.Log.OperatorID == nil || *res.Log.OperatorID != "u1" {
		t.Errorf("log = %+v", res.Log)
	}

	res, err = env.svc.Production.Report(ctx, ReportRequest{OrderID: wo.ID, MachineID: "M1", Result: "OK"}, "unknown-user")
	if err != nil {
		t.Fatalf("anonymous report: %v", err)
	}
	if res.Log.OperatorID != nil {
		t.Errorf("unknown user should report anonymously, got %v", *res.Log.OperatorID)
	}
	if !strings.HasPrefix(res.Log.SerialNo, "GADGET-") || len(res.Log.SerialNo) != len("GADGET-")+8 {
		t.Errorf("generated serial = %q", res.Log.SerialNo)
	}

	recent, err := env.svc.Production.RecentLogs(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].OperatorName != entity.AnonymousOperatorName || recent[1].OperatorName != "Alice" {
		t.Errorf("operator names = %s, %s", recent[0].OperatorName, recent[1].OperatorName)
	}
}

func TestReport_ConcurrentReportsNeverOvershoot(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, "BOLT", 100)
	env.bom(t, "WIDGET", "BOLT", 2)
	wo := env.order(t, "WIDGET", 5)
	env.assign(t, "M1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := report(env, wo.ID, "M1", "OK", "")
			if err != nil {
				t.Errorf("report: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 5 {
		t.Errorf("applied = %d, want 5", applied)
	}
	if got := env.getOrder(t, wo.ID); got.CurrentQty != 5 || got.Status != entity.WOStatusCompleted {
		t.Errorf("order = %d/%s", got.CurrentQty, got.Status)
	}
	if got := env.stock(t, "BOLT"); got != 90 {
		t.Errorf("BOLT = %d, want 90", got)
	}
	if n := env.logCount(t, wo.ID); n != 5 {
		t.Errorf("logs = %d, want 5", n)
	}
}

func TestRecentLogs_LimitAndOrder(t *testing.T) {
	env := newTestEnv(t)
	wo := env.order(t, "GADGET", 20)
	env.assign(t, "M1")
	for i := 0; i < 18; i++ {
		if _, err := report(env, wo.ID, "M1", "OK", ""); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	logs, err := env.svc.Production.RecentLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(logs) != DefaultRecentLogLimit {
		t.Fatalf("recent = %d, want %d", len(logs), DefaultRecentLogLimit)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i-1].ID <= logs[i].ID {
			t.Fatalf("logs not in reverse order at %d: %d then %d", i, logs[i-1].ID, logs[i].ID)
		}
	}

	logs, _ = env.svc.Production.RecentLogs(context.Background(), 3)
	if len(logs) != 3 || logs[0].ID != 18 {
		t.Errorf("limit 3 = %+v", logs)
	}

	if _, err := env.svc.Production.OrderLogs(context.Background(), 404); !errors.Is(err, entity.ErrOrderNotFound) {
		t.Errorf("OrderLogs unknown order: %v", err)
	}
}

func TestReport_PublishesCompletion(t *testing.T) {
	env := newTestEnv(t)
	wo := env.order(t, "GADGET", 1)
	env.assign(t, "M1")
	if _, err := report(env, wo.ID, "M1", "OK", ""); err != nil {
		t.Fatalf("report: %v", err)
	}

	want := []string{
		eventbus.EventOrderCreated,
		eventbus.EventOrderAssigned,
		eventbus.EventProductionReported,
		eventbus.EventOrderCompleted,
	}
	got := env.events.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
