package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athitex/fabricledger/internal/shared"
)

type mockRepository struct {
	mu             sync.Mutex
	cuts           map[int64]*SourceCut
	heldBy         map[int64]int64
	received       map[int64]bool
	orders         map[int64]*ProcessingOrder
	nextOrderID    int64
	nextDeliveryID int64
	nextRowID      int64
	seq            int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		cuts:           make(map[int64]*SourceCut),
		heldBy:         make(map[int64]int64),
		received:       make(map[int64]bool),
		orders:         make(map[int64]*ProcessingOrder),
		nextOrderID:    1,
		nextDeliveryID: 1,
		nextRowID:      1,
	}
}

func (m *mockRepository) addCut(id int64, number, warp, orderRef, inspectedQty string) {
	m.cuts[id] = &SourceCut{
		ID:                id,
		FabricNumber:      number,
		WarpNumber:        warp,
		OrderRef:          orderRef,
		HasInspection:     inspectedQty != "",
		InspectedQuantity: decimal.RequireFromString(orDefault(inspectedQty, "0")),
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &mockTxRepo{mock: m}
	if err := fn(ctx, tx); err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, orderID int64) (ProcessingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ProcessingOrder{}, shared.NotFound("processing order")
	}
	return copyOrder(o), nil
}

func (m *mockRepository) List(ctx context.Context, filters ListFilters) ([]ProcessingOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProcessingOrder
	for _, o := range m.orders {
		out = append(out, copyOrder(o))
	}
	return out, len(out), nil
}

func (m *mockRepository) CheckUsage(ctx context.Context, fabricNumber string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cut := range m.cuts {
		if cut.FabricNumber != fabricNumber {
			continue
		}
		if orderID := m.heldBy[cut.ID]; orderID != 0 {
			return Usage{IsUsed: true, OrderFormNumber: m.orders[orderID].OrderFormNumber}, nil
		}
		return Usage{}, nil
	}
	return Usage{}, shared.NotFound("fabric cut")
}

func copyOrder(o *ProcessingOrder) ProcessingOrder {
	out := *o
	out.SentFabricCuts = append([]SentCut(nil), o.SentFabricCuts...)
	out.Deliveries = append([]Delivery(nil), o.Deliveries...)
	out.ReceivedCuts = append([]ReceivedCut(nil), o.ReceivedCuts...)
	return out
}

type mockTxRepo struct {
	mock *mockRepository
	undo []func()
}

func (t *mockTxRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	t.mock.seq++
	return t.mock.seq, nil
}

func (t *mockTxRepo) GetSourceCut(ctx context.Context, cutID int64) (SourceCut, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	cut, ok := t.mock.cuts[cutID]
	if !ok {
		return SourceCut{}, shared.NotFound("fabric cut")
	}
	out := *cut
	if orderID := t.mock.heldBy[cutID]; orderID != 0 {
		form := t.mock.orders[orderID].OrderFormNumber
		out.HeldBy = &form
	}
	return out, nil
}

func (t *mockTxRepo) InsertOrder(ctx context.Context, o ProcessingOrder) (int64, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	id := t.mock.nextOrderID
	t.mock.nextOrderID++
	o.ID = id
	stored := copyOrder(&o)
	t.mock.orders[id] = &stored
	t.undo = append(t.undo, func() { delete(t.mock.orders, id) })
	return id, nil
}

func (t *mockTxRepo) ClaimCut(ctx context.Context, cutID, orderID int64) (bool, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.mock.heldBy[cutID] != 0 {
		return false, nil
	}
	t.mock.heldBy[cutID] = orderID
	t.undo = append(t.undo, func() { delete(t.mock.heldBy, cutID) })
	return true, nil
}

func (t *mockTxRepo) InsertSentCut(ctx context.Context, orderID int64, sc SentCut) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	sc.ID = t.mock.nextRowID
	t.mock.nextRowID++
	o := t.mock.orders[orderID]
	o.SentFabricCuts = append(o.SentFabricCuts, sc)
	return nil
}

func (t *mockTxRepo) GetOrderForUpdate(ctx context.Context, orderID int64) (ProcessingOrder, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	o, ok := t.mock.orders[orderID]
	if !ok {
		return ProcessingOrder{}, shared.NotFound("processing order")
	}
	return copyOrder(o), nil
}

func (t *mockTxRepo) InsertDelivery(ctx context.Context, orderID int64, d Delivery) (int64, error) {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	d.ID = t.mock.nextDeliveryID
	t.mock.nextDeliveryID++
	o := t.mock.orders[orderID]
	o.Deliveries = append(o.Deliveries, d)
	return d.ID, nil
}

func (t *mockTxRepo) InsertReceivedCut(ctx context.Context, orderID int64, rc ReceivedCut) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	rc.ID = t.mock.nextRowID
	t.mock.nextRowID++
	o := t.mock.orders[orderID]
	o.ReceivedCuts = append(o.ReceivedCuts, rc)
	return nil
}

func (t *mockTxRepo) UpdateDelivery(ctx context.Context, d Delivery) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	for _, o := range t.mock.orders {
		for i := range o.Deliveries {
			if o.Deliveries[i].ID == d.ID {
				o.Deliveries[i] = d
				return nil
			}
		}
	}
	return shared.NotFound("delivery")
}

func (t *mockTxRepo) UpdateReceivedCutQuantity(ctx context.Context, id int64, qty decimal.Decimal) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	for _, o := range t.mock.orders {
		for i := range o.ReceivedCuts {
			if o.ReceivedCuts[i].ID == id {
				o.ReceivedCuts[i].Quantity = qty
				return nil
			}
		}
	}
	return shared.NotFound("received cut")
}

func (t *mockTxRepo) DeleteDelivery(ctx context.Context, deliveryID int64) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	for _, o := range t.mock.orders {
		for i := range o.Deliveries {
			if o.Deliveries[i].ID != deliveryID {
				continue
			}
			o.Deliveries = append(o.Deliveries[:i], o.Deliveries[i+1:]...)
			kept := o.ReceivedCuts[:0]
			for _, rc := range o.ReceivedCuts {
				if rc.DeliveryID != deliveryID {
					kept = append(kept, rc)
				}
			}
			o.ReceivedCuts = kept
			return nil
		}
	}
	return shared.NotFound("delivery")
}

func (t *mockTxRepo) UpdateOrderState(ctx context.Context, orderID int64, status Status, nextCutSeq int) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	o := t.mock.orders[orderID]
	o.Status = status
	o.NextCutSeq = nextCutSeq
	return nil
}

func (t *mockTxRepo) SetSourceCutsReceived(ctx context.Context, orderID int64, received bool) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	for cutID, holder := range t.mock.heldBy {
		if holder == orderID {
			t.mock.received[cutID] = received
		}
	}
	return nil
}

type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: make(map[string]bool)}
}

func (m *mockIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *mockIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Three inspected 10m cuts, all from order form 00003.
func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	repo.addCut(1, "W-1001-1", "W-1001", "00003", "10")
	repo.addCut(2, "W-1001-2", "W-1001", "00003", "10")
	repo.addCut(3, "W-1001-3", "W-1001", "00003", "10")
	return NewService(repo, nil, nil), repo
}

func sendThree(t *testing.T, svc *Service) ProcessingOrder {
	t.Helper()
	result, err := svc.Send(context.Background(), SendInput{
		FabricCutIDs:     []int64{1, 2, 3},
		ProcessingCenter: "SKM Processing",
		Processes:        []string{"bleaching", "calendering"},
		VehicleNumber:    "TN-33-4821",
		DeliveryDate:     time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return result.Order
}

func delivery(orderID int64, number string, qtys ...string) DeliveryInput {
	input := DeliveryInput{
		OrderID:        orderID,
		DeliveryNumber: number,
		ReceivedBy:     "Devi",
		Location:       shared.LocationSalem,
	}
	for _, q := range qtys {
		input.CutQuantities = append(input.CutQuantities, decimal.RequireFromString(q))
	}
	return input
}

func TestSendClaimsCuts(t *testing.T) {
	svc, _ := newTestService()

	order := sendThree(t, svc)
	assert.Equal(t, StatusSent, order.Status)
	assert.Equal(t, "00001", order.OrderFormNumber)
	assert.Len(t, order.SentFabricCuts, 3)
	assert.True(t, order.TotalQuantity.Equal(decimal.NewFromInt(30)))

	usage, err := svc.CheckFabricCutUsed(context.Background(), "W-1001-2")
	require.NoError(t, err)
	assert.True(t, usage.IsUsed)
	assert.Equal(t, order.OrderFormNumber, usage.OrderFormNumber)
}

func TestSendRejectsUninspectedCut(t *testing.T) {
	svc, repo := newTestService()
	repo.addCut(4, "W-1001-4", "W-1001", "00003", "")

	_, err := svc.Send(context.Background(), SendInput{
		FabricCutIDs:     []int64{1, 4},
		ProcessingCenter: "SKM Processing",
		Processes:        []string{"bleaching"},
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	// Cut 1 must not stay claimed by the failed send.
	usage, err := svc.CheckFabricCutUsed(context.Background(), "W-1001-1")
	require.NoError(t, err)
	assert.False(t, usage.IsUsed)
}

func TestSendRejectsHeldCut(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Send(ctx, SendInput{
		FabricCutIDs:     []int64{1},
		ProcessingCenter: "SKM Processing",
		Processes:        []string{"bleaching"},
	})
	require.NoError(t, err)

	_, err = svc.Send(ctx, SendInput{
		FabricCutIDs:     []int64{1, 2},
		ProcessingCenter: "KPR Dyeing",
		Processes:        []string{"dyeing"},
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindClaimConflict, shared.KindOf(err))
	var le *shared.LedgerError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.HeldBy, first.Order.OrderFormNumber)
}

func TestSendMixedOrdersWarning(t *testing.T) {
	svc, repo := newTestService()
	repo.addCut(5, "W-2002-1", "W-2002", "00007", "12")

	result, err := svc.Send(context.Background(), SendInput{
		FabricCutIDs:     []int64{1, 5},
		ProcessingCenter: "SKM Processing",
		Processes:        []string{"bleaching"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.MixedOrdersWarning, "00003")
	assert.Contains(t, result.MixedOrdersWarning, "00007")
}

func TestConcurrentSendSingleWinner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(ctx, SendInput{
				FabricCutIDs:     []int64{1, 2, 3},
				ProcessingCenter: "SKM Processing",
				Processes:        []string{"bleaching"},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	winners, losers := 0, 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		losers++
		assert.Equal(t, shared.KindClaimConflict, shared.KindOf(err))
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)
}

func TestReceiveDeliveryRejectsOverQuantity(t *testing.T) {
	svc, _ := newTestService()
	order := sendThree(t, svc)

	// 10 + 25 exceeds the 30m sent total.
	_, err := svc.ReceiveDelivery(context.Background(), delivery(order.ID, "DC-101", "10", "25"))
	require.Error(t, err)
	var le *shared.LedgerError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, shared.KindCapacity, le.Kind)
	assert.True(t, le.Ceiling.Equal(decimal.NewFromInt(30)))
	assert.True(t, le.Attempted.Equal(decimal.NewFromInt(35)))
}

func TestReceiveDeliveryRejectsOverCount(t *testing.T) {
	svc, _ := newTestService()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(context.Background(), delivery(order.ID, "DC-101", "5", "5", "5", "5"))
	assert.Equal(t, shared.KindCapacity, shared.KindOf(err))
}

func TestPartialDeliveriesReconcile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := sendThree(t, svc)

	updated, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10", "15"))
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyReceived, updated.Status)
	require.Len(t, updated.ReceivedCuts, 2)
	assert.Equal(t, "WR/1/01", updated.ReceivedCuts[0].FabricNumber)
	assert.Equal(t, "WR/1/02", updated.ReceivedCuts[1].FabricNumber)

	updated, err = svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-102", "5"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	require.Len(t, updated.ReceivedCuts, 3)
	assert.Equal(t, "WR/1/03", updated.ReceivedCuts[2].FabricNumber)

	summary, err := svc.Summarize(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ReceivedCuts)
	assert.Equal(t, 0, summary.ShortageCuts)
	assert.True(t, summary.ShortageQuantity.IsZero())
}

func TestDeleteDeliveryNeverRewindsNumbering(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10", "15"))
	require.NoError(t, err)

	updated, err := svc.DeleteDelivery(ctx, order.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, updated.Status)
	assert.Empty(t, updated.ReceivedCuts)

	// WR/1/01 and WR/1/02 are burned; the next delivery starts at 03.
	updated, err = svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-103", "8"))
	require.NoError(t, err)
	require.Len(t, updated.ReceivedCuts, 1)
	assert.Equal(t, "WR/1/03", updated.ReceivedCuts[0].FabricNumber)
}

func TestEditDeliveryKeepsFabricNumbers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10", "15"))
	require.NoError(t, err)

	updated, err := svc.EditDelivery(ctx, EditDeliveryInput{
		OrderID:        order.ID,
		DeliveryIndex:  0,
		DeliveryNumber: "DC-101-R",
		ReceivedBy:     "Devi",
		Location:       shared.LocationSalem,
		CutQuantities:  []decimal.Decimal{decimal.RequireFromString("9.5"), decimal.RequireFromString("14")},
	})
	require.NoError(t, err)
	require.Len(t, updated.ReceivedCuts, 2)
	assert.Equal(t, "WR/1/01", updated.ReceivedCuts[0].FabricNumber)
	assert.True(t, updated.ReceivedCuts[0].Quantity.Equal(decimal.RequireFromString("9.5")))
	assert.Equal(t, "DC-101-R", updated.Deliveries[0].DeliveryNumber)
}

func TestEditDeliveryRequiresMatchingCutCount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10", "15"))
	require.NoError(t, err)

	_, err = svc.EditDelivery(ctx, EditDeliveryInput{
		OrderID:        order.ID,
		DeliveryIndex:  0,
		DeliveryNumber: "DC-101",
		ReceivedBy:     "Devi",
		Location:       shared.LocationSalem,
		CutQuantities:  []decimal.Decimal{decimal.NewFromInt(10)},
	})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestEditDeliveryCeilingExcludesItself(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10", "15"))
	require.NoError(t, err)
	_, err = svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-102", "5"))
	require.NoError(t, err)

	// Raising the first delivery to 26 total breaks the 30m ceiling once the
	// second delivery's 5m is counted.
	_, err = svc.EditDelivery(ctx, EditDeliveryInput{
		OrderID:        order.ID,
		DeliveryIndex:  0,
		DeliveryNumber: "DC-101",
		ReceivedBy:     "Devi",
		Location:       shared.LocationSalem,
		CutQuantities:  []decimal.Decimal{decimal.NewFromInt(13), decimal.NewFromInt(13)},
	})
	assert.Equal(t, shared.KindCapacity, shared.KindOf(err))

	// 25 total still fits.
	updated, err := svc.EditDelivery(ctx, EditDeliveryInput{
		OrderID:        order.ID,
		DeliveryIndex:  0,
		DeliveryNumber: "DC-101",
		ReceivedBy:     "Devi",
		Location:       shared.LocationSalem,
		CutQuantities:  []decimal.Decimal{decimal.NewFromInt(13), decimal.NewFromInt(12)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
}

func TestReceiveDeliveryReplayRejected(t *testing.T) {
	repo := newMockRepository()
	repo.addCut(1, "W-1001-1", "W-1001", "00003", "10")
	repo.addCut(2, "W-1001-2", "W-1001", "00003", "10")
	repo.addCut(3, "W-1001-3", "W-1001", "00003", "10")
	svc := NewService(repo, nil, newMockIdempotency())
	ctx := context.Background()
	order := sendThree(t, svc)

	_, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10"))
	require.NoError(t, err)

	_, err = svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-101", "10"))
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	// A failed submission releases its key so the corrected retry goes through.
	_, err = svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-102", "10", "10", "10"))
	assert.Equal(t, shared.KindCapacity, shared.KindOf(err))
	updated, err := svc.ReceiveDelivery(ctx, delivery(order.ID, "DC-102", "10", "10"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
}
