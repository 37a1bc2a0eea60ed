// Package memstore is an in-memory entitlement ledger. It enforces the same
// uniqueness rules as the PostgreSQL schema and is used by tests and local
// runs without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tiergate/internal/types"
)

type grantKey struct {
	userID     string
	resourceID string
}

// Store holds users, purchases and grants behind a single RWMutex.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*types.User // by external ID
	purchases []*types.Purchase
	grants    map[grantKey]*types.EntitlementGrant
	now       func() time.Time

	// Fail* inject errors for the next matching write.
	FailUpsertUser        error
	FailInsertPurchase    error
	FailUpsertEntitlement error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[string]*types.User),
		grants: make(map[grantKey]*types.EntitlementGrant),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetUserByExternalID(_ context.Context, externalUserID string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[externalUserID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) UpsertUser(_ context.Context, externalUserID string, profile types.UserProfile) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailUpsertUser; err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}

	now := s.now()
	u, ok := s.users[externalUserID]
	if !ok {
		u = &types.User{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.users[externalUserID] = u
	}
	if u.Username == nil && profile.Username != "" {
		name := profile.Username
		u.Username = &name
		u.UpdatedAt = now
	}
	if u.Email == nil && profile.Email != "" {
		email := profile.Email
		u.Email = &email
		u.UpdatedAt = now
	}
	cp := *u
	return &cp, nil
}

func (s *Store) InsertPurchase(_ context.Context, p *types.Purchase) (*types.Purchase, error) {
	if !p.Status.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationEvent, fmt.Sprintf("invalid purchase status %q", p.Status), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailInsertPurchase; err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert purchase", err)
	}
	if !s.hasUserIDLocked(p.UserID) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert purchase",
			fmt.Errorf("user %s does not exist", p.UserID))
	}

	out := *p
	out.ID = uuid.NewString()
	out.CreatedAt = s.now()
	s.purchases = append(s.purchases, &out)
	cp := out
	return &cp, nil
}

func (s *Store) UpsertEntitlement(_ context.Context, userID, resourceID string) (*types.EntitlementGrant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailUpsertEntitlement; err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert entitlement", err)
	}
	if !s.hasUserIDLocked(userID) {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert entitlement",
			fmt.Errorf("user %s does not exist", userID))
	}

	key := grantKey{userID, resourceID}
	if g, ok := s.grants[key]; ok {
		cp := *g
		return &cp, false, nil
	}
	g := &types.EntitlementGrant{
		ID:         uuid.NewString(),
		UserID:     userID,
		ResourceID: resourceID,
		CreatedAt:  s.now(),
	}
	s.grants[key] = g
	cp := *g
	return &cp, true, nil
}

func (s *Store) DeleteEntitlement(_ context.Context, userID, resourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey{userID, resourceID}
	if _, ok := s.grants[key]; !ok {
		return false, nil
	}
	delete(s.grants, key)
	return true, nil
}

func (s *Store) HasEntitlement(_ context.Context, userID, resourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[grantKey{userID, resourceID}]
	return ok, nil
}

func (s *Store) hasUserIDLocked(id string) bool {
	for _, u := range s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

// --- Inspection helpers ---

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Purchases returns a copy of every stored purchase in insertion order.
func (s *Store) Purchases() []types.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Purchase, len(s.purchases))
	for i, p := range s.purchases {
		out[i] = *p
	}
	return out
}

// GrantCount returns the number of stored grants.
func (s *Store) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// Writes returns the total number of stored rows across all three tables.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users) + len(s.purchases) + len(s.grants)
}
