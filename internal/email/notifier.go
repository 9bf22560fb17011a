package email

import (
	"context"
	"fmt"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier отправляет уведомления пользователям о событиях биллинга.
// Отправка не должна блокировать основной поток: сервисы вызывают
// методы асинхронно, ошибки только логируются.
type Notifier interface {
	// SendSubscriptionActivated уведомляет об активации подписки.
	SendSubscriptionActivated(ctx context.Context, user domain.User, plan domain.Plan) error

	// SendSubscriptionCanceled уведомляет об отмене подписки.
	SendSubscriptionCanceled(ctx context.Context, user domain.User, plan domain.Plan) error
}

// sendGridNotifier реализует Notifier поверх SendGrid.
type sendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *logger.Logger
}

// NewSendGridNotifier создает новый SendGrid нотификатор.
func NewSendGridNotifier(apiKey, fromEmail, fromName string, log *logger.Logger) Notifier {
	return &sendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		log:       log,
	}
}

// SendSubscriptionActivated уведомляет об активации подписки.
func (n *sendGridNotifier) SendSubscriptionActivated(ctx context.Context, user domain.User, plan domain.Plan) error {
	subject := fmt.Sprintf("Your %s subscription is active", plan.Name)
	body := fmt.Sprintf(
		"Your subscription to the %s plan ($%.2f/month) is now active.\n\nThank you for subscribing!",
		plan.Name, plan.Price,
	)
	return n.send(ctx, user, subject, body)
}

// SendSubscriptionCanceled уведомляет об отмене подписки.
func (n *sendGridNotifier) SendSubscriptionCanceled(ctx context.Context, user domain.User, plan domain.Plan) error {
	subject := fmt.Sprintf("Your %s subscription has been canceled", plan.Name)
	body := fmt.Sprintf(
		"Your subscription to the %s plan has been canceled.\n\nYou can subscribe again at any time.",
		plan.Name,
	)
	return n.send(ctx, user, subject, body)
}

func (n *sendGridNotifier) send(ctx context.Context, user domain.User, subject, body string) error {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(user.Email, user.Email)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		n.log.Errorw("Failed to send email", "error", err, "userID", user.ID, "subject", subject)
		return fmt.Errorf("sendgrid: failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		n.log.Errorw("SendGrid rejected email", "statusCode", response.StatusCode, "userID", user.ID, "subject", subject)
		return fmt.Errorf("sendgrid: unexpected status code %d", response.StatusCode)
	}

	n.log.Debugw("Email sent", "statusCode", response.StatusCode, "userID", user.ID, "subject", subject)
	return nil
}

// NopNotifier - заглушка, используется когда SendGrid не сконфигурирован.
type NopNotifier struct{}

func (NopNotifier) SendSubscriptionActivated(ctx context.Context, user domain.User, plan domain.Plan) error {
	return nil
}

func (NopNotifier) SendSubscriptionCanceled(ctx context.Context, user domain.User, plan domain.Plan) error {
	return nil
}
