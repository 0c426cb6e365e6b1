package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/textwave/textwave/app/dto"
	businessflow "github.com/textwave/textwave/business_flow"
	"github.com/textwave/textwave/utils"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	ListCampaignMessages(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a draft campaign bound to a completed contact import
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Import still processing"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	userID, ok := h.userFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	importJobUUID, err := uuid.Parse(req.ImportJobUUID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid import job UUID", "INVALID_UUID", nil)
	}

	campaign, err := h.campaignFlow.CreateCampaign(h.createRequestContext(c, "/api/v1/campaigns"), userID, req.Name, req.MessageText, importJobUUID, req.IsVirtual(), req.SkipInvalidPhones)
	if err != nil {
		if businessflow.IsImportJobNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Import job not found", "IMPORT_NOT_FOUND", nil)
		}
		if businessflow.IsImportAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: import job belongs to another user", "IMPORT_ACCESS_DENIED", nil)
		}
		if businessflow.IsImportStillProcessing(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Import job is still processing", "IMPORT_STILL_PROCESSING", nil)
		}
		if businessflow.IsImportHasNoContacts(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Import job has no contacts", "IMPORT_HAS_NO_CONTACTS", nil)
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", dto.NewCampaignResponse(campaign))
}

// StartCampaign activates a draft or paused campaign and begins sending
// @Summary Start Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign started"
// @Failure 403 {object} dto.APIResponse "Access denied"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign not startable"
// @Router /api/v1/campaigns/{uuid}/start [post]
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	userID, campaignUUID, ok, errResp := h.campaignRequest(c)
	if !ok {
		return errResp
	}

	if err := h.campaignFlow.StartCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid/start"), campaignUUID, userID); err != nil {
		if businessflow.IsCampaignNotStartable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign can only be started from draft or paused", "CAMPAIGN_NOT_STARTABLE", nil)
		}
		if businessflow.IsCampaignAlreadyProcessing(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is already being processed", "CAMPAIGN_ALREADY_PROCESSING", nil)
		}
		return h.campaignError(c, err, "Campaign start failed", "CAMPAIGN_START_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign started successfully", fiber.Map{
		"uuid":   campaignUUID.String(),
		"status": "active",
	})
}

// PauseCampaign pauses an active campaign
// @Summary Pause Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign paused"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign not pausable"
// @Router /api/v1/campaigns/{uuid}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	userID, campaignUUID, ok, errResp := h.campaignRequest(c)
	if !ok {
		return errResp
	}

	if err := h.campaignFlow.PauseCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid/pause"), campaignUUID, userID); err != nil {
		if businessflow.IsCampaignNotPausable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign can only be paused while active", "CAMPAIGN_NOT_PAUSABLE", nil)
		}
		return h.campaignError(c, err, "Campaign pause failed", "CAMPAIGN_PAUSE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign paused successfully", fiber.Map{
		"uuid":   campaignUUID.String(),
		"status": "paused",
	})
}

// CancelCampaign cancels a campaign that has not yet finished
// @Summary Cancel Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign cancelled"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign already terminal"
// @Router /api/v1/campaigns/{uuid}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	userID, campaignUUID, ok, errResp := h.campaignRequest(c)
	if !ok {
		return errResp
	}

	if err := h.campaignFlow.CancelCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid/cancel"), campaignUUID, userID); err != nil {
		if businessflow.IsCampaignAlreadyTerminal(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is already in a terminal state", "CAMPAIGN_ALREADY_TERMINAL", nil)
		}
		return h.campaignError(c, err, "Campaign cancel failed", "CAMPAIGN_CANCEL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign cancelled successfully", fiber.Map{
		"uuid":   campaignUUID.String(),
		"status": "cancelled",
	})
}

// GetCampaign returns a single campaign with its counters
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	userID, campaignUUID, ok, errResp := h.campaignRequest(c)
	if !ok {
		return errResp
	}

	campaign, err := h.campaignFlow.GetCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid"), campaignUUID, userID)
	if err != nil {
		return h.campaignError(c, err, "Failed to get campaign", "GET_CAMPAIGN_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", dto.NewCampaignResponse(campaign))
}

// ListCampaigns returns the user's campaigns with pagination
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(10)
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	userID, ok := h.userFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	page, limit := paginationParams(c)

	campaigns, err := h.campaignFlow.ListCampaigns(h.createRequestContext(c, "/api/v1/campaigns"), userID, limit, (page-1)*limit)
	if err != nil {
		log.Println("List campaigns failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", "LIST_CAMPAIGNS_FAILED", nil)
	}

	items := make([]*dto.CampaignResponse, 0, len(campaigns))
	for _, campaign := range campaigns {
		items = append(items, dto.NewCampaignResponse(campaign))
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", fiber.Map{
		"items": items,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
		},
	})
}

// ListCampaignMessages returns the campaign's outbound messages with pagination
// @Summary List Campaign Messages
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(10)
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/campaigns/{uuid}/messages [get]
func (h *CampaignHandler) ListCampaignMessages(c fiber.Ctx) error {
	userID, campaignUUID, ok, errResp := h.campaignRequest(c)
	if !ok {
		return errResp
	}

	page, limit := paginationParams(c)

	messages, err := h.campaignFlow.ListCampaignMessages(h.createRequestContext(c, "/api/v1/campaigns/:uuid/messages"), campaignUUID, userID, limit, (page-1)*limit)
	if err != nil {
		return h.campaignError(c, err, "Failed to list campaign messages", "LIST_CAMPAIGN_MESSAGES_FAILED")
	}

	items := make([]*dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		items = append(items, dto.NewMessageResponse(msg))
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign messages retrieved successfully", fiber.Map{
		"items": items,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
		},
	})
}

// campaignRequest extracts the acting user and the campaign UUID path param.
// When ok is false the error response has already been written.
func (h *CampaignHandler) campaignRequest(c fiber.Ctx) (uint, uuid.UUID, bool, error) {
	userID, ok := h.userFromRequest(c)
	if !ok {
		return 0, uuid.Nil, false, h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	campaignUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return 0, uuid.Nil, false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign UUID", "INVALID_UUID", nil)
	}
	return userID, campaignUUID, true, nil
}

// campaignError maps shared campaign business errors onto HTTP responses.
func (h *CampaignHandler) campaignError(c fiber.Ctx, err error, fallbackMsg, fallbackCode string) error {
	if businessflow.IsCampaignNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}
	if businessflow.IsCampaignAccessDenied(err) {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: campaign belongs to another user", "CAMPAIGN_ACCESS_DENIED", nil)
	}

	log.Println(fallbackMsg, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMsg, fallbackCode, nil)
}

func (h *CampaignHandler) userFromRequest(c fiber.Ctx) (uint, bool) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
