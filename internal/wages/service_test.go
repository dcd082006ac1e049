package wages

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athitex/fabricledger/internal/shared"
)

type cutState struct {
	cut       InvoiceCut
	warpID    int64
	submitted bool
}

type mockRepository struct {
	warps       map[int64]*WarpRef
	cuts        map[int64]*cutState
	invoices    map[int64]*WageInvoice
	invoiceCuts map[int64][]int64
	sequences   map[string]int64
	nextID      int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		warps:       make(map[int64]*WarpRef),
		cuts:        make(map[int64]*cutState),
		invoices:    make(map[int64]*WageInvoice),
		invoiceCuts: make(map[int64][]int64),
		sequences:   make(map[string]int64),
		nextID:      1,
	}
}

func (m *mockRepository) addCut(warpID, cutID int64, number, actualQty string) {
	m.cuts[cutID] = &cutState{
		warpID: warpID,
		cut: InvoiceCut{
			FabricCutID:       cutID,
			FabricNumber:      number,
			Quantity:          decimal.RequireFromString(actualQty),
			InspectedQuantity: decimal.RequireFromString(actualQty),
			ActualQuantity:    decimal.RequireFromString(actualQty),
			Inspector1:        "Lakshmi",
		},
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) Get(ctx context.Context, id int64) (WageInvoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return WageInvoice{}, shared.NotFound("wage invoice")
	}
	return *inv, nil
}

func (m *mockRepository) List(ctx context.Context, filters ListFilters) ([]WageInvoice, int, error) {
	var out []WageInvoice
	for _, inv := range m.invoices {
		out = append(out, *inv)
	}
	return out, len(out), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	t.mock.sequences[scope]++
	return t.mock.sequences[scope], nil
}

func (t *mockTxRepo) LockWarp(ctx context.Context, warpID int64) (WarpRef, error) {
	w, ok := t.mock.warps[warpID]
	if !ok {
		return WarpRef{}, shared.NotFound("warp")
	}
	return *w, nil
}

func (t *mockTxRepo) EligibleCutsForWarp(ctx context.Context, warpID int64) ([]InvoiceCut, error) {
	var out []InvoiceCut
	for _, cs := range t.mock.cuts {
		if cs.warpID == warpID && !cs.submitted {
			out = append(out, cs.cut)
		}
	}
	return out, nil
}

func (t *mockTxRepo) MarkCutsInvoiceSubmitted(ctx context.Context, cutIDs []int64) error {
	for _, id := range cutIDs {
		if t.mock.cuts[id].submitted {
			return shared.ClaimConflict("fabric cuts", "another wage invoice")
		}
	}
	for _, id := range cutIDs {
		t.mock.cuts[id].submitted = true
	}
	return nil
}

func (t *mockTxRepo) ReleaseCuts(ctx context.Context, invoiceID int64) error {
	for _, cutID := range t.mock.invoiceCuts[invoiceID] {
		t.mock.cuts[cutID].submitted = false
	}
	return nil
}

func (t *mockTxRepo) InsertInvoice(ctx context.Context, inv WageInvoice) (int64, error) {
	id := t.mock.nextID
	t.mock.nextID++
	inv.ID = id
	t.mock.invoices[id] = &inv
	return id, nil
}

func (t *mockTxRepo) InsertInvoiceCut(ctx context.Context, invoiceID int64, cut InvoiceCut) error {
	t.mock.invoiceCuts[invoiceID] = append(t.mock.invoiceCuts[invoiceID], cut.FabricCutID)
	return nil
}

func (t *mockTxRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (WageInvoice, error) {
	inv, ok := t.mock.invoices[id]
	if !ok {
		return WageInvoice{}, shared.NotFound("wage invoice")
	}
	return *inv, nil
}

func (t *mockTxRepo) UpdateDecision(ctx context.Context, inv WageInvoice) error {
	stored, ok := t.mock.invoices[inv.ID]
	if !ok {
		return shared.NotFound("wage invoice")
	}
	*stored = inv
	return nil
}

func (t *mockTxRepo) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	inv, ok := t.mock.invoices[id]
	if !ok {
		return shared.NotFound("wage invoice")
	}
	inv.Status = StatusPaymentDone
	inv.PaidAt = &paidAt
	return nil
}

func (t *mockTxRepo) DeleteInvoice(ctx context.Context, id int64) error {
	delete(t.mock.invoices, id)
	delete(t.mock.invoiceCuts, id)
	return nil
}

type captureEvents struct {
	events []InvoiceStatusEvent
}

func (c *captureEvents) Publish(ctx context.Context, ev InvoiceStatusEvent) {
	c.events = append(c.events, ev)
}

// Warp W-1001 with two inspected cuts totalling 100m.
func newTestService() (*Service, *mockRepository, *captureEvents) {
	repo := newMockRepository()
	repo.warps[7] = &WarpRef{ID: 7, WarpNumber: "W-1001", Status: "ACTIVE"}
	repo.addCut(7, 1, "W-1001-1", "46")
	repo.addCut(7, 2, "W-1001-2", "54")
	events := &captureEvents{}
	return NewService(repo, nil, nil, events), repo, events
}

func rate(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func TestSubmitInvoice(t *testing.T) {
	svc, repo, _ := newTestService()

	inv, err := svc.Submit(context.Background(), SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)
	assert.Equal(t, "AT/W-1001/1", inv.InvoiceNumber)
	assert.Equal(t, StatusPending, inv.Status)
	assert.Len(t, inv.Cuts, 2)
	assert.True(t, inv.ActualQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, inv.TotalWages.Equal(decimal.NewFromInt(5000)))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", inv.RefID.String())
	assert.True(t, repo.cuts[1].submitted)
	assert.True(t, repo.cuts[2].submitted)
}

func TestSubmitRequiresPositiveRate(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Submit(context.Background(), SubmitInput{WarpID: 7, RatePerMeter: decimal.Zero})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestSubmitRequiresEligibleCuts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	// Both cuts are locked under the first invoice now.
	_, err = svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestApproveWithOverwrittenValues(t *testing.T) {
	svc, _, events := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	actual := rate("95")
	decided, err := svc.Decide(ctx, DecideInput{
		InvoiceID: inv.ID,
		Approve:   true,
		Updated:   &UpdatedValues{ActualQuantity: &actual},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, decided.Status)
	assert.True(t, decided.ActualQuantity.Equal(rate("95")))
	assert.True(t, decided.TotalWages.Equal(rate("4750")))
	assert.True(t, decided.ValuesUpdatedDuringApproval)
	require.NotNil(t, decided.ApprovedAt)

	require.Len(t, events.events, 1)
	assert.Equal(t, inv.ID, events.events[0].InvoiceID)
	assert.Equal(t, string(StatusApproved), events.events[0].NewStatus)
}

func TestApproveUnchangedValuesKeepsFlagClear(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	same := rate("100")
	decided, err := svc.Decide(ctx, DecideInput{
		InvoiceID: inv.ID,
		Approve:   true,
		Updated:   &UpdatedValues{ActualQuantity: &same},
	})
	require.NoError(t, err)
	assert.False(t, decided.ValuesUpdatedDuringApproval)
	assert.True(t, decided.TotalWages.Equal(rate("5000")))
}

func TestApproveRejectsBadOverwrites(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	negative := rate("-1")
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true, Updated: &UpdatedValues{ActualQuantity: &negative}})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	zeroRate := decimal.Zero
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true, Updated: &UpdatedValues{RatePerMeter: &zeroRate}})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestRejectAcceptsNoValueChanges(t *testing.T) {
	svc, _, events := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	actual := rate("95")
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: false, Updated: &UpdatedValues{ActualQuantity: &actual}})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	rejected, err := svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: false, Note: "rate disputed"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	// Rejection publishes nothing.
	assert.Empty(t, events.events)
}

func TestDecideOnlyPending(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true})
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: false})
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))
}

func TestMarkPaid(t *testing.T) {
	svc, _, events := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	// Payment before approval is illegal.
	_, err = svc.MarkPaid(ctx, inv.ID, 0)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))

	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true})
	require.NoError(t, err)
	paid, err := svc.MarkPaid(ctx, inv.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentDone, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// Settling twice is illegal.
	_, err = svc.MarkPaid(ctx, inv.ID, 0)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))

	require.Len(t, events.events, 2)
	assert.Equal(t, string(StatusPaymentDone), events.events[1].NewStatus)
}

func TestDeleteReleasesCutsForResubmission(t *testing.T) {
	svc, repo, events := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, inv.ID))
	assert.False(t, repo.cuts[1].submitted)
	assert.False(t, repo.cuts[2].submitted)
	require.Len(t, events.events, 1)
	assert.Equal(t, "DELETED", events.events[0].NewStatus)

	// The invoice counter never rewinds: the resubmission gets sequence 2.
	resubmitted, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("55")})
	require.NoError(t, err)
	assert.Equal(t, "AT/W-1001/2", resubmitted.InvoiceNumber)
}

func TestDeleteOnlyPendingOrRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: true})
	require.NoError(t, err)

	err = svc.Delete(ctx, inv.ID)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))

	_, err = svc.MarkPaid(ctx, inv.ID, 0)
	require.NoError(t, err)
	err = svc.Delete(ctx, inv.ID)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))
}

func TestDeleteRejectedInvoice(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Submit(ctx, SubmitInput{WarpID: 7, RatePerMeter: rate("50")})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, DecideInput{InvoiceID: inv.ID, Approve: false})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, inv.ID))
	_, err = svc.Get(ctx, inv.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
