package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriptionRepo() *InMemorySubscriptionRepository {
	return NewInMemorySubscriptionRepository(logger.New(logger.FATAL))
}

func activeSubscription(userID uuid.UUID) domain.Subscription {
	return domain.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    uuid.New(),
		Status:    domain.SubscriptionStatusActive,
		StartedAt: time.Now(),
	}
}

// Параллельные попытки создать активную подписку для одного пользователя:
// ровно одна должна пройти, остальные получить ErrDuplicateActive.
func TestConcurrentCreateSingleActive(t *testing.T) {
	repo := newTestSubscriptionRepo()
	userID := uuid.New()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Create(ctx, activeSubscription(userID))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateActive)
		}
	}
	assert.Equal(t, 1, succeeded)

	subs, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestCreateAllowsActiveAfterCancel(t *testing.T) {
	repo := newTestSubscriptionRepo()
	userID := uuid.New()
	ctx := context.Background()

	first, err := repo.Create(ctx, activeSubscription(userID))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, domain.SubscriptionStatusCanceled, &now))

	_, err = repo.Create(ctx, activeSubscription(userID))
	assert.NoError(t, err)
}

func TestCreateRejectsDuplicateStripeID(t *testing.T) {
	repo := newTestSubscriptionRepo()
	ctx := context.Background()

	first := activeSubscription(uuid.New())
	first.StripeSubscriptionID = "sub_dup"
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	second := activeSubscription(uuid.New())
	second.StripeSubscriptionID = "sub_dup"
	_, err = repo.Create(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetActiveByUserID(t *testing.T) {
	repo := newTestSubscriptionRepo()
	userID := uuid.New()
	ctx := context.Background()

	_, err := repo.GetActiveByUserID(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := repo.Create(ctx, activeSubscription(userID))
	require.NoError(t, err)

	got, err := repo.GetActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	now := time.Now()
	require.NoError(t, repo.UpdateStatus(ctx, created.ID, domain.SubscriptionStatusCanceled, &now))

	_, err = repo.GetActiveByUserID(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByStripeSubscriptionID(t *testing.T) {
	repo := newTestSubscriptionRepo()
	ctx := context.Background()

	sub := activeSubscription(uuid.New())
	sub.StripeSubscriptionID = "sub_lookup"
	created, err := repo.Create(ctx, sub)
	require.NoError(t, err)

	got, err := repo.GetByStripeSubscriptionID(ctx, "sub_lookup")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.GetByStripeSubscriptionID(ctx, "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusUnknownSubscription(t *testing.T) {
	repo := newTestSubscriptionRepo()

	err := repo.UpdateStatus(context.Background(), uuid.New(), domain.SubscriptionStatusCanceled, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
