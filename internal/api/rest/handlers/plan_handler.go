package handlers

import (
	"net/http"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/creatoragency/billing-service/pkg/req"
	"github.com/gin-gonic/gin"
)

// PlanHandler обработчик для каталога планов
type PlanHandler struct {
	planSvc service.PlanService
	log     *logger.Logger
}

// NewPlanHandler создает новый обработчик планов
func NewPlanHandler(planSvc service.PlanService, log *logger.Logger) *PlanHandler {
	return &PlanHandler{
		planSvc: planSvc,
		log:     log,
	}
}

// GetPlans возвращает все планы каталога
func (h *PlanHandler) GetPlans(c *gin.Context) {
	plans, err := h.planSvc.GetAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get plans")
		return
	}
	c.JSON(http.StatusOK, plans)
}

// GetPlan возвращает план по ID
func (h *PlanHandler) GetPlan(c *gin.Context) {
	id := c.Param("id")

	plan, err := h.planSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

// CreatePlan создает новый план. Только для администраторов.
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	_, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	body, err := req.HandleBody[domain.PlanRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	plan, err := h.planSvc.Create(c.Request.Context(), role, *body)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to create plan")
		return
	}

	h.log.Info("Created plan with ID: %s", plan.ID)
	c.JSON(http.StatusCreated, plan)
}

// DeletePlan удаляет план. Только для администраторов.
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	_, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id := c.Param("id")
	if err := h.planSvc.Delete(c.Request.Context(), role, id); err != nil {
		respondServiceError(c, h.log, err, "Failed to delete plan")
		return
	}

	h.log.Info("Deleted plan with ID: %s", id)
	c.Status(http.StatusNoContent)
}
