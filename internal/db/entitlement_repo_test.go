package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tiergate/internal/types"
)

func isInsert(sql string) bool { return strings.Contains(sql, "INSERT INTO entitlement_grants") }
func isSelect(sql string) bool { return strings.HasPrefix(strings.TrimSpace(sql), "SELECT") }

func TestEntitlementRepository_Upsert_Inserts(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return isInsert(sql) && strings.Contains(sql, "ON CONFLICT (user_id, resource_id) DO NOTHING")
	}), mock.Anything).Return(rowOf("g1", "uuid-user", "t1", fixedTime))

	g, created, err := NewEntitlementRepository(db).Upsert(context.Background(), "uuid-user", "t1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "g1", g.ID)
	db.AssertNumberOfCalls(t, "QueryRow", 1)
}

func TestEntitlementRepository_Upsert_ExistingIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(isInsert), mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})
	db.On("QueryRow", mock.Anything, mock.MatchedBy(isSelect), []any{"uuid-user", "t1"}).Return(rowOf("g0", "uuid-user", "t1", fixedTime))

	g, created, err := NewEntitlementRepository(db).Upsert(context.Background(), "uuid-user", "t1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "g0", g.ID)
	db.AssertExpectations(t)
}

func TestEntitlementRepository_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(isInsert), mock.Anything).Return(&mockRow{scanErr: errors.New("fk violation")})

	_, _, err := NewEntitlementRepository(db).Upsert(context.Background(), "uuid-user", "t1")
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestEntitlementRepository_Delete(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.Anything, []any{"uuid-user", "t1"}).Return(pgconn.NewCommandTag("DELETE 1"), nil).Once()
	db.On("Exec", mock.Anything, mock.Anything, []any{"uuid-user", "t2"}).Return(pgconn.NewCommandTag("DELETE 0"), nil).Once()
	repo := NewEntitlementRepository(db)

	removed, err := repo.Delete(context.Background(), "uuid-user", "t1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(context.Background(), "uuid-user", "t2")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEntitlementRepository_ListByUser(t *testing.T) {
	db := new(mockDBTX)
	db.On("Query", mock.Anything, mock.Anything, []any{"uuid-user"}).Return(newMockRows([][]any{
		{"g1", "uuid-user", "t1", fixedTime},
		{"g2", "uuid-user", "t2", fixedTime},
	}), nil)

	grants, err := NewEntitlementRepository(db).ListByUser(context.Background(), "uuid-user")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "t2", grants[1].ResourceID)
}

func TestLedger_HasEntitlement(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"u", "t1"}).Return(rowOf("g1", "u", "t1", fixedTime))
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"u", "t2"}).Return(&mockRow{scanErr: pgx.ErrNoRows})
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"u", "t3"}).Return(&mockRow{scanErr: errors.New("boom")})
	ledger := NewLedger(db)

	ok, err := ledger.HasEntitlement(context.Background(), "u", "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.HasEntitlement(context.Background(), "u", "t2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ledger.HasEntitlement(context.Background(), "u", "t3")
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
