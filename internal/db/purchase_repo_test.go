package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tiergate/internal/types"
)

func TestPurchaseRepository_Insert(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPurchaseRepository(db)

	meta := types.Metadata{"template_id": "t1"}
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "INSERT INTO purchases")
	}), mock.MatchedBy(func(args []any) bool {
		return len(args) == 6 &&
			args[1] == "uuid-user" &&
			args[2] == "p1" &&
			args[3] == 500.0 &&
			args[4] == "completed" &&
			assert.Equal(t, meta, args[5])
	})).Return(&mockRow{scanFn: func(dest ...any) error {
		*(dest[0].(*time.Time)) = fixedTime
		return nil
	}})

	in := &types.Purchase{UserID: "uuid-user", ExternalPaymentID: "p1", Amount: 500, Status: types.PurchaseStatusCompleted, Metadata: meta}
	got, err := repo.Insert(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, fixedTime, got.CreatedAt)
	assert.Empty(t, in.ID, "input must not be mutated")
	db.AssertExpectations(t)
}

func TestPurchaseRepository_Insert_InvalidStatus(t *testing.T) {
	db := new(mockDBTX)

	_, err := NewPurchaseRepository(db).Insert(context.Background(), &types.Purchase{Status: "chargeback"})
	assert.Equal(t, types.ErrCodeValidationEvent, types.CodeOf(err))
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseRepository_Insert_DBError(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: errors.New("fk violation")})

	_, err := NewPurchaseRepository(db).Insert(context.Background(), &types.Purchase{Status: types.PurchaseStatusCompleted})
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestPurchaseRepository_CountByExternalPaymentID(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"p1"}).Return(rowOf(2))

	n, err := NewPurchaseRepository(db).CountByExternalPaymentID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
