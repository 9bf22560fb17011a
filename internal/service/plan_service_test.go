package service

import (
	"context"
	"testing"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanTestEnv(t *testing.T) (PlanService, *repository.InMemorySubscriptionRepository) {
	t.Helper()
	log := testLogger()
	subs := repository.NewInMemorySubscriptionRepository(log)
	plans := repository.NewInMemoryPlanRepository(subs, log)
	return NewPlanService(plans, log), subs
}

func TestCreatePlanRequiresAdmin(t *testing.T) {
	svc, _ := newPlanTestEnv(t)

	_, err := svc.Create(context.Background(), domain.UserRoleCreator, domain.PlanRequest{Name: "Pro", Price: 10})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(context.Background(), domain.UserRoleAgency, domain.PlanRequest{Name: "Pro", Price: 10})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreatePlan(t *testing.T) {
	svc, _ := newPlanTestEnv(t)

	plan, err := svc.Create(context.Background(), domain.UserRoleAdmin, domain.PlanRequest{
		Name:     "Pro",
		Price:    29.99,
		Features: "priority support",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, plan.ID)
	assert.Equal(t, 29.99, plan.Price)

	got, err := svc.GetByID(context.Background(), plan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
}

func TestCreatePlanPriceValidation(t *testing.T) {
	svc, _ := newPlanTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		price float64
		ok    bool
	}{
		{"free plan", 0, true},
		{"two decimals", 19.99, true},
		{"whole dollars", 100, true},
		{"negative", -1, false},
		{"sub-cent precision", 9.999, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, domain.UserRoleAdmin, domain.PlanRequest{Name: tc.name, Price: tc.price})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			}
		})
	}
}

func TestDeletePlanGuardedByReferences(t *testing.T) {
	svc, subs := newPlanTestEnv(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, domain.UserRoleAdmin, domain.PlanRequest{Name: "Pro", Price: 10})
	require.NoError(t, err)

	sub, err := subs.Create(ctx, domain.Subscription{
		ID:     uuid.New(),
		UserID: uuid.New(),
		PlanID: plan.ID,
		Status: domain.SubscriptionStatusActive,
	})
	require.NoError(t, err)

	// План с подписками удалить нельзя, даже отмененными
	err = svc.Delete(ctx, domain.UserRoleAdmin, plan.ID.String())
	assert.ErrorIs(t, err, domain.ErrPlanInUse)

	require.NoError(t, subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionStatusCanceled, nil))
	err = svc.Delete(ctx, domain.UserRoleAdmin, plan.ID.String())
	assert.ErrorIs(t, err, domain.ErrPlanInUse)
}

func TestDeletePlanWithoutReferences(t *testing.T) {
	svc, _ := newPlanTestEnv(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, domain.UserRoleAdmin, domain.PlanRequest{Name: "Pro", Price: 10})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, domain.UserRoleAdmin, plan.ID.String()))

	_, err = svc.GetByID(ctx, plan.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteUnknownPlan(t *testing.T) {
	svc, _ := newPlanTestEnv(t)

	err := svc.Delete(context.Background(), domain.UserRoleAdmin, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
