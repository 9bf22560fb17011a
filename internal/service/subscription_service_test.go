package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriptionTestEnv struct {
	subs     *repository.InMemorySubscriptionRepository
	plans    *repository.InMemoryPlanRepository
	users    *repository.InMemoryUserRepository
	stripe   *fakeStripeClient
	svc      SubscriptionService
	plan     domain.Plan
	creator  domain.User
	admin    domain.User
	stranger domain.User
}

func newSubscriptionTestEnv(t *testing.T) *subscriptionTestEnv {
	t.Helper()
	log := testLogger()

	subs := repository.NewInMemorySubscriptionRepository(log)
	plans := repository.NewInMemoryPlanRepository(subs, log)
	users := repository.NewInMemoryUserRepository(log)
	fakeStripe := newFakeStripeClient()

	plan, err := plans.Create(context.Background(), domain.Plan{
		ID:        uuid.New(),
		Name:      "Pro",
		Price:     29.99,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	creator := domain.User{ID: uuid.New(), Email: "creator@example.com", Role: domain.UserRoleCreator}
	admin := domain.User{ID: uuid.New(), Email: "admin@example.com", Role: domain.UserRoleAdmin}
	stranger := domain.User{ID: uuid.New(), Email: "other@example.com", Role: domain.UserRoleCreator}
	users.Add(creator)
	users.Add(admin)
	users.Add(stranger)

	svc := NewSubscriptionService(subs, plans, users, fakeStripe, nil, nil, nil, log)

	return &subscriptionTestEnv{
		subs:     subs,
		plans:    plans,
		users:    users,
		stripe:   fakeStripe,
		svc:      svc,
		plan:     plan,
		creator:  creator,
		admin:    admin,
		stranger: stranger,
	}
}

func TestSubscribe(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()

	sub, err := env.svc.Subscribe(ctx, env.creator.ID.String(), domain.SubscribeRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, env.creator.ID, sub.UserID)
	assert.Equal(t, env.plan.ID, sub.PlanID)
	assert.Empty(t, sub.StripeSubscriptionID)
}

func TestSubscribeRejectsSecondActive(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	req := domain.SubscribeRequest{PlanID: env.plan.ID.String()}

	_, err := env.svc.Subscribe(ctx, env.creator.ID.String(), req)
	require.NoError(t, err)

	_, err = env.svc.Subscribe(ctx, env.creator.ID.String(), req)
	assert.ErrorIs(t, err, domain.ErrActiveSubscriptionExists)
}

func TestSubscribeUnknownPlan(t *testing.T) {
	env := newSubscriptionTestEnv(t)

	_, err := env.svc.Subscribe(context.Background(), env.creator.ID.String(), domain.SubscribeRequest{PlanID: uuid.NewString()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubscribeAfterCancelAllowed(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	req := domain.SubscribeRequest{PlanID: env.plan.ID.String()}
	userID := env.creator.ID.String()

	sub, err := env.svc.Subscribe(ctx, userID, req)
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, sub.ID.String(), userID, domain.UserRoleCreator)
	require.NoError(t, err)

	// После отмены пользователь может подписаться снова
	again, err := env.svc.Subscribe(ctx, userID, req)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, again.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, again.Status)
}

func TestCancelTwiceReturnsConflict(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	userID := env.creator.ID.String()

	sub, err := env.svc.Subscribe(ctx, userID, domain.SubscribeRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, sub.ID.String(), userID, domain.UserRoleCreator)
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, sub.ID.String(), userID, domain.UserRoleCreator)
	assert.ErrorIs(t, err, domain.ErrSubscriptionCanceled)
}

func TestCancelForeignSubscriptionForbidden(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()

	sub, err := env.svc.Subscribe(ctx, env.creator.ID.String(), domain.SubscribeRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, sub.ID.String(), env.stranger.ID.String(), domain.UserRoleCreator)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Подписка осталась активной
	got, err := env.svc.GetActive(ctx, env.creator.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
}

func TestAdminCanCancelAnySubscription(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()

	sub, err := env.svc.Subscribe(ctx, env.creator.ID.String(), domain.SubscribeRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	canceled, err := env.svc.Cancel(ctx, sub.ID.String(), env.admin.ID.String(), domain.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
}

func TestCancelStripeFirst(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	userID := env.creator.ID.String()

	created, err := env.subs.Create(ctx, domain.Subscription{
		ID:                   uuid.New(),
		UserID:               env.creator.ID,
		PlanID:               env.plan.ID,
		Status:               domain.SubscriptionStatusActive,
		StartedAt:            time.Now(),
		StripeSubscriptionID: "sub_test_42",
	})
	require.NoError(t, err)

	// Отказ Stripe оставляет локальную запись активной
	env.stripe.cancelErr = errors.New("stripe unavailable")
	_, err = env.svc.Cancel(ctx, created.ID.String(), userID, domain.UserRoleCreator)
	require.Error(t, err)

	got, err := env.subs.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)

	// После восстановления Stripe отмена проходит и доходит до Stripe
	env.stripe.cancelErr = nil
	canceled, err := env.svc.Cancel(ctx, created.ID.String(), userID, domain.UserRoleCreator)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, canceled.Status)
	assert.Equal(t, []string{"sub_test_42"}, env.stripe.canceledSubIDs)
}

func TestListRequiresAdmin(t *testing.T) {
	env := newSubscriptionTestEnv(t)

	_, err := env.svc.List(context.Background(), domain.UserRoleCreator, 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListPagination(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()

	// Пять подписок разных пользователей
	for i := 0; i < 5; i++ {
		u := domain.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Role: domain.UserRoleCreator}
		env.users.Add(u)
		_, err := env.svc.Subscribe(ctx, u.ID.String(), domain.SubscribeRequest{PlanID: env.plan.ID.String()})
		require.NoError(t, err)
	}

	page, err := env.svc.List(ctx, domain.UserRoleAdmin, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Items, 2)

	last, err := env.svc.List(ctx, domain.UserRoleAdmin, 3, 2)
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
}

func TestGetLiveStatusWithoutStripeBinding(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	userID := env.creator.ID.String()

	sub, err := env.svc.Subscribe(ctx, userID, domain.SubscribeRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	// Прямая подписка не привязана к Stripe: возвращается локальный статус
	got, status, err := env.svc.GetLiveStatus(ctx, sub.ID.String(), userID, domain.UserRoleCreator)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, string(domain.SubscriptionStatusActive), status)
}

func TestGetLiveStatusQueriesStripe(t *testing.T) {
	env := newSubscriptionTestEnv(t)
	ctx := context.Background()
	userID := env.creator.ID.String()

	created, err := env.subs.Create(ctx, domain.Subscription{
		ID:                   uuid.New(),
		UserID:               env.creator.ID,
		PlanID:               env.plan.ID,
		Status:               domain.SubscriptionStatusActive,
		StartedAt:            time.Now(),
		StripeSubscriptionID: "sub_live",
	})
	require.NoError(t, err)

	// Stripe может знать о просрочке раньше, чем придет вебхук
	env.stripe.liveStatus = "past_due"
	_, status, err := env.svc.GetLiveStatus(ctx, created.ID.String(), userID, domain.UserRoleCreator)
	require.NoError(t, err)
	assert.Equal(t, "past_due", status)

	env.stripe.getErr = errors.New("stripe unavailable")
	_, _, err = env.svc.GetLiveStatus(ctx, created.ID.String(), userID, domain.UserRoleCreator)
	assert.Error(t, err)
}

func TestGetActiveNotFound(t *testing.T) {
	env := newSubscriptionTestEnv(t)

	_, err := env.svc.GetActive(context.Background(), env.creator.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
