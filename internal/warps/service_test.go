package warps

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athitex/fabricledger/internal/shared"
)

type mockRepository struct {
	warps  map[int64]*Warp
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{warps: make(map[int64]*Warp), nextID: 1}
}

func (m *mockRepository) Create(ctx context.Context, w Warp) (int64, error) {
	id := m.nextID
	m.nextID++
	w.ID = id
	m.warps[id] = &w
	return id, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Warp, error) {
	w, ok := m.warps[id]
	if !ok {
		return Warp{}, shared.NotFound("warp")
	}
	return *w, nil
}

func (m *mockRepository) GetByNumber(ctx context.Context, warpNumber string) (Warp, error) {
	for _, w := range m.warps {
		if w.WarpNumber == warpNumber {
			return *w, nil
		}
	}
	return Warp{}, shared.NotFound("warp")
}

func (m *mockRepository) List(ctx context.Context, filters ListFilters) ([]Warp, int, error) {
	var out []Warp
	for _, w := range m.warps {
		if filters.Status != "" && string(w.Status) != filters.Status {
			continue
		}
		out = append(out, *w)
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	w, ok := m.warps[id]
	if !ok {
		return shared.NotFound("warp")
	}
	w.Status = status
	return nil
}

func TestCreateWarp(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	w, err := svc.Create(context.Background(), CreateInput{
		WarpNumber: "W-1001",
		Quantity:   decimal.NewFromInt(100),
		OrderRef:   "ORD-7",
		LoomRef:    "LOOM-3",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, w.Status)
	assert.NotZero(t, w.ID)
}

func TestCreateWarpRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Create(context.Background(), CreateInput{WarpNumber: "W-1", Quantity: decimal.Zero})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.Create(context.Background(), CreateInput{WarpNumber: "W-1", Quantity: decimal.NewFromInt(-5)})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestCreateWarpRequiresNumber(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Create(context.Background(), CreateInput{WarpNumber: "  ", Quantity: decimal.NewFromInt(10)})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpdateStatus(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	w, err := svc.Create(context.Background(), CreateInput{WarpNumber: "W-1", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), w.ID, StatusStopped)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), w.ID, StatusComplete)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, updated.Status)
}

func TestUpdateStatusCompletedIsTerminal(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	w, err := svc.Create(context.Background(), CreateInput{WarpNumber: "W-1", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), w.ID, StatusComplete)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), w.ID, StatusActive)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))
}

func TestUpdateStatusUnknown(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.UpdateStatus(context.Background(), 1, Status("SCRAPPED"))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.UpdateStatus(context.Background(), 99, StatusStopped)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
