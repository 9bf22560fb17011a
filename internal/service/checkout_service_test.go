package service

import (
	"context"
	"testing"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutTestEnv struct {
	subs   *repository.InMemorySubscriptionRepository
	plans  *repository.InMemoryPlanRepository
	users  *repository.InMemoryUserRepository
	stripe *fakeStripeClient
	svc    CheckoutService
	plan   domain.Plan
	user   domain.User
}

func newCheckoutTestEnv(t *testing.T) *checkoutTestEnv {
	t.Helper()
	log := testLogger()

	subs := repository.NewInMemorySubscriptionRepository(log)
	plans := repository.NewInMemoryPlanRepository(subs, log)
	users := repository.NewInMemoryUserRepository(log)
	fakeStripe := newFakeStripeClient()

	plan, err := plans.Create(context.Background(), domain.Plan{
		ID:        uuid.New(),
		Name:      "Agency",
		Price:     99.00,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	user := domain.User{ID: uuid.New(), Email: "creator@example.com", Role: domain.UserRoleCreator}
	users.Add(user)

	svc := NewCheckoutService(plans, users, subs, fakeStripe, nil, log)

	return &checkoutTestEnv{
		subs:   subs,
		plans:  plans,
		users:  users,
		stripe: fakeStripe,
		svc:    svc,
		plan:   plan,
		user:   user,
	}
}

func TestStartCheckout(t *testing.T) {
	env := newCheckoutTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.StartCheckout(ctx, env.user.ID.String(), domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", result.SessionID)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.Equal(t, env.plan.Name, result.PlanName)
	assert.Equal(t, env.plan.Price, result.PlanPrice)

	// Сессия создана для правильного пользователя и плана
	require.Equal(t, 1, env.stripe.sessionCount())
	assert.Equal(t, env.user.ID, env.stripe.createdFor[0].user.ID)
	assert.Equal(t, env.plan.ID, env.stripe.createdFor[0].plan.ID)
}

// URL-ы возврата из запроса передаются в Stripe как есть; пустые значения
// клиент Stripe заменит настройками сервиса.
func TestStartCheckoutRedirectURLOverride(t *testing.T) {
	env := newCheckoutTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartCheckout(ctx, env.user.ID.String(), domain.CheckoutRequest{
		PlanID:     env.plan.ID.String(),
		SuccessURL: "https://app.example.com/billing/done",
		CancelURL:  "https://app.example.com/billing/abort",
	})
	require.NoError(t, err)

	require.Equal(t, 1, env.stripe.sessionCount())
	assert.Equal(t, "https://app.example.com/billing/done", env.stripe.createdFor[0].successURL)
	assert.Equal(t, "https://app.example.com/billing/abort", env.stripe.createdFor[0].cancelURL)
}

func TestStartCheckoutDefaultRedirectURLs(t *testing.T) {
	env := newCheckoutTestEnv(t)

	_, err := env.svc.StartCheckout(context.Background(), env.user.ID.String(), domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	require.Equal(t, 1, env.stripe.sessionCount())
	assert.Empty(t, env.stripe.createdFor[0].successURL)
	assert.Empty(t, env.stripe.createdFor[0].cancelURL)
}

// Локальная запись подписки появляется только после вебхука,
// а не при создании checkout сессии.
func TestStartCheckoutCreatesNoLocalSubscription(t *testing.T) {
	env := newCheckoutTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartCheckout(ctx, env.user.ID.String(), domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	require.NoError(t, err)

	subs, err := env.subs.GetByUserID(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestStartCheckoutUnknownPlan(t *testing.T) {
	env := newCheckoutTestEnv(t)

	_, err := env.svc.StartCheckout(context.Background(), env.user.ID.String(), domain.CheckoutRequest{PlanID: uuid.NewString()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, env.stripe.sessionCount())
}

func TestStartCheckoutUnknownUser(t *testing.T) {
	env := newCheckoutTestEnv(t)

	_, err := env.svc.StartCheckout(context.Background(), uuid.NewString(), domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, env.stripe.sessionCount())
}

func TestStartCheckoutRejectsActiveSubscriber(t *testing.T) {
	env := newCheckoutTestEnv(t)
	ctx := context.Background()

	_, err := env.subs.Create(ctx, domain.Subscription{
		ID:        uuid.New(),
		UserID:    env.user.ID,
		PlanID:    env.plan.ID,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = env.svc.StartCheckout(ctx, env.user.ID.String(), domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	assert.ErrorIs(t, err, domain.ErrActiveSubscriptionExists)
	// До Stripe дело не дошло
	assert.Equal(t, 0, env.stripe.sessionCount())
}

func TestStartCheckoutInvalidIDs(t *testing.T) {
	env := newCheckoutTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartCheckout(ctx, "not-a-uuid", domain.CheckoutRequest{PlanID: env.plan.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.svc.StartCheckout(ctx, env.user.ID.String(), domain.CheckoutRequest{PlanID: "not-a-uuid"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
