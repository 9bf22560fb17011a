package service

import (
	"context"
	"errors"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// PlanService интерфейс сервиса для работы с каталогом планов
type PlanService interface {
	GetAll(ctx context.Context) ([]domain.Plan, error)
	GetByID(ctx context.Context, id string) (domain.Plan, error)
	Create(ctx context.Context, actingRole domain.UserRole, req domain.PlanRequest) (domain.Plan, error)
	Delete(ctx context.Context, actingRole domain.UserRole, id string) error
}

type planService struct {
	planRepo repository.PlanRepository
	log      *logger.Logger
}

// NewPlanService создает новый сервис каталога планов
func NewPlanService(planRepo repository.PlanRepository, log *logger.Logger) PlanService {
	return &planService{
		planRepo: planRepo,
		log:      log,
	}
}

// GetAll возвращает все планы каталога
func (s *planService) GetAll(ctx context.Context) ([]domain.Plan, error) {
	plans, err := s.planRepo.GetAll(ctx)
	if err != nil {
		s.log.Error("Error fetching plans: %v", err)
		return nil, err
	}
	return plans, nil
}

// GetByID возвращает план по идентификатору
func (s *planService) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	planID, err := uuid.Parse(id)
	if err != nil {
		s.log.Warn("Invalid UUID format for plan ID: %s", id)
		return domain.Plan{}, domain.ErrInvalidInput
	}

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Plan{}, domain.NewNotFoundError("plan", id)
		}
		s.log.Error("Error fetching plan %s: %v", id, err)
		return domain.Plan{}, err
	}
	return plan, nil
}

// Create создает новый план. Доступно только администраторам.
func (s *planService) Create(ctx context.Context, actingRole domain.UserRole, req domain.PlanRequest) (domain.Plan, error) {
	if !actingRole.IsAdmin() {
		s.log.Warn("Non-admin attempted to create a plan, role: %s", actingRole)
		return domain.Plan{}, domain.ErrForbidden
	}

	if !domain.ValidPrice(req.Price) {
		s.log.Warn("Rejected plan with invalid price: %v", req.Price)
		return domain.Plan{}, domain.ErrInvalidInput
	}

	plan := domain.Plan{
		ID:        uuid.New(),
		Name:      req.Name,
		Price:     req.Price,
		Features:  req.Features,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.planRepo.Create(ctx, plan)
	if err != nil {
		s.log.Error("Error creating plan: %v", err)
		return domain.Plan{}, err
	}

	s.log.Infow("Plan created", "planID", created.ID, "name", created.Name, "price", created.Price)
	return created, nil
}

// Delete удаляет план. Доступно только администраторам.
// План, на который ссылается хотя бы одна подписка, удалить нельзя.
func (s *planService) Delete(ctx context.Context, actingRole domain.UserRole, id string) error {
	if !actingRole.IsAdmin() {
		s.log.Warn("Non-admin attempted to delete a plan, role: %s", actingRole)
		return domain.ErrForbidden
	}

	planID, err := uuid.Parse(id)
	if err != nil {
		s.log.Warn("Invalid UUID format for plan ID: %s", id)
		return domain.ErrInvalidInput
	}

	count, err := s.planRepo.CountSubscriptions(ctx, planID)
	if err != nil {
		s.log.Error("Error counting subscriptions for plan %s: %v", id, err)
		return err
	}
	if count > 0 {
		s.log.Warn("Refusing to delete plan %s: %d subscriptions reference it", id, count)
		return domain.ErrPlanInUse
	}

	if err := s.planRepo.Delete(ctx, planID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewNotFoundError("plan", id)
		}
		s.log.Error("Error deleting plan %s: %v", id, err)
		return err
	}

	s.log.Infow("Plan deleted", "planID", id)
	return nil
}
