package service

import (
	"context"
	"sync"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/stripe"
	"github.com/creatoragency/billing-service/pkg/logger"
	stripesdk "github.com/stripe/stripe-go/v78"
)

// fakeStripeClient - управляемая тестами замена Stripe клиента.
type fakeStripeClient struct {
	mu sync.Mutex

	createErr      error
	createdFor     []createdSession
	nextSessionID  string
	nextCheckout   string
	cancelErr      error
	canceledSubIDs []string
	liveStatus     stripesdk.SubscriptionStatus
	getErr         error
}

type createdSession struct {
	user       domain.User
	plan       domain.Plan
	successURL string
	cancelURL  string
}

func newFakeStripeClient() *fakeStripeClient {
	return &fakeStripeClient{
		nextSessionID: "cs_test_123",
		nextCheckout:  "https://checkout.stripe.test/cs_test_123",
		liveStatus:    stripesdk.SubscriptionStatusActive,
	}
}

func (f *fakeStripeClient) CreateCheckoutSession(ctx context.Context, user domain.User, plan domain.Plan, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdFor = append(f.createdFor, createdSession{
		user:       user,
		plan:       plan,
		successURL: successURL,
		cancelURL:  cancelURL,
	})
	return &stripe.CheckoutSession{
		SessionID:   f.nextSessionID,
		CheckoutURL: f.nextCheckout,
	}, nil
}

func (f *fakeStripeClient) CancelSubscription(ctx context.Context, stripeSubscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceledSubIDs = append(f.canceledSubIDs, stripeSubscriptionID)
	return nil
}

func (f *fakeStripeClient) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripesdk.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	return &stripesdk.Subscription{ID: stripeSubscriptionID, Status: f.liveStatus}, nil
}

func (f *fakeStripeClient) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.canceledSubIDs)
}

func (f *fakeStripeClient) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createdFor)
}

func testLogger() *logger.Logger {
	return logger.New(logger.FATAL)
}
