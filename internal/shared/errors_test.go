package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"validation", Validationf("bad input"), KindValidation},
		{"capacity", CapacityExceeded("warp W-1", decimal.NewFromInt(100), decimal.NewFromInt(120)), KindCapacity},
		{"claim", ClaimConflict("fabric cut W-1-1", "movement MO-00001"), KindClaimConflict},
		{"state", StateConflict("invoice AT/W-1/1", "APPROVED", "PENDING"), KindStateConflict},
		{"not found", NotFound("warp"), KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("movement"))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCapacityCarriesNumbers(t *testing.T) {
	err := CapacityExceeded("warp W-9", decimal.RequireFromString("100"), decimal.RequireFromString("120.5"))
	var le *LedgerError
	require.True(t, errors.As(err, &le))
	assert.True(t, le.Ceiling.Equal(decimal.NewFromInt(100)))
	assert.True(t, le.Attempted.Equal(decimal.RequireFromString("120.5")))
	assert.Contains(t, le.Message, "120.5")
	assert.Contains(t, le.Message, "100")
}

func TestClaimConflictNamesHolder(t *testing.T) {
	err := ClaimConflict("fabric cut W-1-2", "processing order 00042")
	var le *LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "processing order 00042", le.HeldBy)
	assert.Contains(t, le.Error(), "00042")
}

func TestStateConflictNamesStatuses(t *testing.T) {
	err := StateConflict("wage invoice AT/W-1/1", "PAYMENT_DONE", "APPROVED")
	var le *LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "PAYMENT_DONE", le.Current)
	assert.Equal(t, "APPROVED", le.Required)
}
