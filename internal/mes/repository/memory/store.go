package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// Store 内存事务存储，事务串行执行
// 事务在状态快照上读写，回调成功才替换已提交状态
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.snapshot()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// state 已提交的 map 和切片不再原地修改
// 快照共享它们，首次写入某张表时才复制该表
type state struct {
	materials map[int64]entity.Material
	movements []entity.StockMovement
	bomLines  map[int64]entity.BOMLine
	operators map[string]entity.Operator
	orders    map[int64]entity.WorkOrder
	logs      []entity.ProductionLog

	materialSeq int64
	movementSeq int64
	bomSeq      int64
	orderSeq    int64
	logSeq      int64

	// 本快照已私有化的表
	ownMaterials bool
	ownBOM       bool
	ownOperators bool
	ownOrders    bool
}

func newState() *state {
	return &state{
		materials: make(map[int64]entity.Material),
		bomLines:  make(map[int64]entity.BOMLine),
		operators: make(map[string]entity.Operator),
		orders:    make(map[int64]entity.WorkOrder),
	}
}

// snapshot 浅拷贝，切片截断容量使 append 总是重新分配
func (s *state) snapshot() *state {
	c := *s
	c.ownMaterials, c.ownBOM, c.ownOperators, c.ownOrders = false, false, false, false
	c.movements = s.movements[:len(s.movements):len(s.movements)]
	c.logs = s.logs[:len(s.logs):len(s.logs)]
	return &c
}

func (s *state) writeMaterials() map[int64]entity.Material {
	if !s.ownMaterials {
		s.materials = maps.Clone(s.materials)
		s.ownMaterials = true
	}
	return s.materials
}

func (s *state) writeBOM() map[int64]entity.BOMLine {
	if !s.ownBOM {
		s.bomLines = maps.Clone(s.bomLines)
		s.ownBOM = true
	}
	return s.bomLines
}

func (s *state) writeOperators() map[string]entity.Operator {
	if !s.ownOperators {
		s.operators = maps.Clone(s.operators)
		s.ownOperators = true
	}
	return s.operators
}

func (s *state) writeOrders() map[int64]entity.WorkOrder {
	if !s.ownOrders {
		s.orders = maps.Clone(s.orders)
		s.ownOrders = true
	}
	return s.orders
}

type tx struct {
	st *state
}

func (t *tx) Materials() repository.MaterialRepository           { return materialRepo{t.st} }
func (t *tx) Movements() repository.MovementRepository           { return movementRepo{t.st} }
func (t *tx) BOMs() repository.BOMRepository                     { return bomRepo{t.st} }
func (t *tx) Operators() repository.OperatorRepository           { return operatorRepo{t.st} }
func (t *tx) WorkOrders() repository.WorkOrderRepository         { return workOrderRepo{t.st} }
func (t *tx) ProductionLogs() repository.ProductionLogRepository { return productionLogRepo{t.st} }

// ============================================================
// 物料
// ============================================================

type materialRepo struct{ st *state }

func (r materialRepo) FindByCode(_ context.Context, code string) (*entity.Material, error) {
	for _, m := range r.st.materials {
		if m.Code == code {
			m := m
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

// LockByCode 事务已持有存储锁，直接查找
func (r materialRepo) LockByCode(ctx context.Context, code string) (*entity.Material, error) {
	return r.FindByCode(ctx, code)
}

func (r materialRepo) Create(_ context.Context, m *entity.Material) error {
	for _, existing := range r.st.materials {
		if existing.Code == m.Code {
			return repository.ErrConflict
		}
	}
	r.st.materialSeq++
	now := time.Now()
	m.ID = r.st.materialSeq
	m.CreatedAt, m.UpdatedAt = now, now
	r.st.writeMaterials()[m.ID] = *m
	return nil
}

func (r materialRepo) AddStock(_ context.Context, id int64, amount int) (*entity.Material, error) {
	m, ok := r.st.materials[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.CanReceive(amount) {
		return nil, repository.ErrStockOverflow
	}
	m.CurrentStock += amount
	m.UpdatedAt = time.Now()
	r.st.writeMaterials()[id] = m
	return &m, nil
}

func (r materialRepo) DeductStock(_ context.Context, id int64, qty int) (*entity.Material, error) {
	m, ok := r.st.materials[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.CurrentStock < qty {
		return nil, repository.ErrInsufficientStock
	}
	m.CurrentStock -= qty
	m.UpdatedAt = time.Now()
	r.st.writeMaterials()[id] = m
	return &m, nil
}

func (r materialRepo) List(_ context.Context) ([]entity.Material, error) {
	items := make([]entity.Material, 0, len(r.st.materials))
	for _, m := range r.st.materials {
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

type movementRepo struct{ st *state }

func (r movementRepo) Create(_ context.Context, mv *entity.StockMovement) error {
	r.st.movementSeq++
	mv.ID = r.st.movementSeq
	mv.CreatedAt = time.Now()
	r.st.movements = append(r.st.movements, *mv)
	return nil
}

func (r movementRepo) ListByMaterial(_ context.Context, materialID int64, limit int) ([]entity.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []entity.StockMovement
	for i := len(r.st.movements) - 1; i >= 0 && len(items) < limit; i-- {
		if r.st.movements[i].MaterialID == materialID {
			items = append(items, r.st.movements[i])
		}
	}
	return items, nil
}

// ============================================================
// BOM 与作业员
// ============================================================

type bomRepo struct{ st *state }

func (r bomRepo) ListByProduct(_ context.Context, productCode string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	for _, line := range r.st.bomLines {
		if line.ProductCode != productCode {
			continue
		}
		if m, ok := r.st.materials[line.MaterialID]; ok {
			m := m
			line.Material = &m
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (r bomRepo) Upsert(_ context.Context, line *entity.BOMLine) error {
	if _, ok := r.st.materials[line.MaterialID]; !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	for id, existing := range r.st.bomLines {
		if existing.ProductCode == line.ProductCode && existing.MaterialID == line.MaterialID {
			existing.RequiredQty = line.RequiredQty
			existing.UpdatedAt = now
			r.st.writeBOM()[id] = existing
			line.ID, line.CreatedAt, line.UpdatedAt = existing.ID, existing.CreatedAt, now
			return nil
		}
	}
	r.st.bomSeq++
	stored := *line
	stored.ID = r.st.bomSeq
	stored.Material = nil
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.st.writeBOM()[stored.ID] = stored
	line.ID, line.CreatedAt, line.UpdatedAt = stored.ID, now, now
	return nil
}

type operatorRepo struct{ st *state }

func (r operatorRepo) GetByID(_ context.Context, id string) (*entity.Operator, error) {
	op, ok := r.st.operators[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &op, nil
}

func (r operatorRepo) Save(_ context.Context, op *entity.Operator) error {
	now := time.Now()
	if existing, ok := r.st.operators[op.ID]; ok {
		op.CreatedAt = existing.CreatedAt
	} else if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	r.st.writeOperators()[op.ID] = *op
	return nil
}

// ============================================================
// 工单与报工记录
// ============================================================

type workOrderRepo struct{ st *state }

func (r workOrderRepo) Create(_ context.Context, wo *entity.WorkOrder) error {
	r.st.orderSeq++
	now := time.Now()
	wo.ID = r.st.orderSeq
	wo.CreatedAt, wo.UpdatedAt = now, now
	r.st.writeOrders()[wo.ID] = *wo
	return nil
}

func (r workOrderRepo) GetByID(_ context.Context, id int64) (*entity.WorkOrder, error) {
	wo, ok := r.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &wo, nil
}

func (r workOrderRepo) LockByID(ctx context.Context, id int64) (*entity.WorkOrder, error) {
	return r.GetByID(ctx, id)
}

func (r workOrderRepo) FindInProgressByMachine(_ context.Context, machineID string) (*entity.WorkOrder, error) {
	var found *entity.WorkOrder
	for _, wo := range r.st.orders {
		if wo.Status == entity.WOStatusInProgress && wo.MachineID() == machineID {
			if found == nil || wo.ID < found.ID {
				wo := wo
				found = &wo
			}
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r workOrderRepo) LockOldestWaiting(_ context.Context) (*entity.WorkOrder, error) {
	var found *entity.WorkOrder
	for _, wo := range r.st.orders {
		if wo.Status == entity.WOStatusWaiting && (found == nil || wo.ID < found.ID) {
			wo := wo
			found = &wo
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r workOrderRepo) Update(_ context.Context, wo *entity.WorkOrder, fromStatus string) error {
	stored, ok := r.st.orders[wo.ID]
	if !ok || stored.Status != fromStatus {
		return repository.ErrConflict
	}
	if wo.Status == entity.WOStatusInProgress && wo.MachineID() != "" {
		for id, other := range r.st.orders {
			if id != wo.ID && other.Status == entity.WOStatusInProgress && other.MachineID() == wo.MachineID() {
				return repository.ErrConflict
			}
		}
	}
	wo.UpdatedAt = time.Now()
	r.st.writeOrders()[wo.ID] = *wo
	return nil
}

func (r workOrderRepo) List(_ context.Context, params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	params = params.Normalize()
	var all []entity.WorkOrder
	for _, wo := range r.st.orders {
		if params.Status == "" || wo.Status == params.Status {
			all = append(all, wo)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (params.Page - 1) * params.Size
	if start >= len(all) {
		return []entity.WorkOrder{}, total, nil
	}
	end := start + params.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

type productionLogRepo struct{ st *state }

func (r productionLogRepo) Create(_ context.Context, log *entity.ProductionLog) error {
	if _, ok := r.st.orders[log.WorkOrderID]; !ok {
		return repository.ErrNotFound
	}
	r.st.logSeq++
	log.ID = r.st.logSeq
	log.CreatedAt = time.Now()
	stored := *log
	stored.Operator = nil
	r.st.logs = append(r.st.logs, stored)
	return nil
}

func (r productionLogRepo) ListRecent(_ context.Context, limit int) ([]entity.ProductionLog, error) {
	var logs []entity.ProductionLog
	for i := len(r.st.logs) - 1; i >= 0 && (limit <= 0 || len(logs) < limit); i-- {
		logs = append(logs, r.withOperator(r.st.logs[i]))
	}
	return logs, nil
}

func (r productionLogRepo) ListByWorkOrder(_ context.Context, workOrderID int64) ([]entity.ProductionLog, error) {
	var logs []entity.ProductionLog
	for _, l := range r.st.logs {
		if l.WorkOrderID == workOrderID {
			logs = append(logs, r.withOperator(l))
		}
	}
	return logs, nil
}

func (r productionLogRepo) withOperator(l entity.ProductionLog) entity.ProductionLog {
	if l.OperatorID != nil {
		if op, ok := r.st.operators[*l.OperatorID]; ok {
			l.Operator = &op
		}
	}
	return l
}
