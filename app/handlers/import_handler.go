package handlers

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/textwave/textwave/app/dto"
	"github.com/textwave/textwave/app/importer"
	"github.com/textwave/textwave/app/services"
	businessflow "github.com/textwave/textwave/business_flow"
	"github.com/textwave/textwave/utils"
)

// ImportHandlerInterface defines the contract for contact import handlers
type ImportHandlerInterface interface {
	UploadImport(c fiber.Ctx) error
	GetImportJob(c fiber.Ctx) error
	ListImportJobs(c fiber.Ctx) error
	GetImportProgress(c fiber.Ctx) error
	DownloadImportErrors(c fiber.Ctx) error
	CancelImport(c fiber.Ctx) error
}

// ImportHandler handles contact import HTTP requests
type ImportHandler struct {
	importFlow businessflow.ImportFlow
	progress   *services.RedisProgressSink
	uploadDir  string
	validator  *validator.Validate
}

// NewImportHandler creates a new import handler. progress may be nil when no
// cache is configured; progress queries then fall back to the persisted job.
func NewImportHandler(importFlow businessflow.ImportFlow, progress *services.RedisProgressSink, uploadDir string) *ImportHandler {
	return &ImportHandler{
		importFlow: importFlow,
		progress:   progress,
		uploadDir:  uploadDir,
		validator:  validator.New(),
	}
}

func (h *ImportHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ImportHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// UploadImport accepts a CSV upload, registers an import job and starts the
// parse in the background
// @Summary Upload Contact Import
// @Description Upload a CSV file of contacts; column detection runs automatically unless a mapping is supplied
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param mapping formData string false "Optional column mapping JSON"
// @Success 202 {object} dto.APIResponse{data=dto.ImportJobResponse} "Import accepted"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/imports [post]
func (h *ImportHandler) UploadImport(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "CSV file is required", "MISSING_FILE", err.Error())
	}

	var mapping *importer.Mapping
	if raw := c.FormValue("mapping"); raw != "" {
		var req dto.ColumnMappingRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid mapping JSON", "INVALID_MAPPING", err.Error())
		}
		if err := h.validator.Struct(&req); err != nil {
			var validationErrors []string
			for _, err := range err.(validator.ValidationErrors) {
				validationErrors = append(validationErrors, getValidationErrorMessage(err))
			}
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
		}
		mapping = &importer.Mapping{
			PhoneColumn:       req.PhoneColumn,
			NameColumn:        req.NameColumn,
			TagColumns:        req.TagColumns,
			SkipInvalidPhones: req.SkipInvalidPhones,
		}
	}

	job, err := h.importFlow.CreateImportJob(h.createRequestContext(c, "/api/v1/imports"), ownerID, fileHeader.Filename, fileHeader.Size)
	if err != nil {
		if businessflow.IsImportFileTooLarge(err) {
			return h.ErrorResponse(c, fiber.StatusRequestEntityTooLarge, "File exceeds the size limit", "IMPORT_FILE_TOO_LARGE", nil)
		}

		log.Println("Import job creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Import job creation failed", "IMPORT_CREATION_FAILED", nil)
	}

	path := filepath.Join(h.uploadDir, job.UUID.String()+filepath.Ext(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, path); err != nil {
		log.Println("Failed to save uploaded file", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store uploaded file", "UPLOAD_STORE_FAILED", nil)
	}

	// The parse outlives the request, so it runs on a detached context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if err := h.importFlow.RunImport(ctx, job.UUID, path, mapping); err != nil {
			log.Printf("Import %s failed: %v", job.UUID, err)
		}
	}()

	return h.SuccessResponse(c, fiber.StatusAccepted, "Import accepted for processing", dto.NewImportJobResponse(job))
}

// GetImportJob returns a single import job
// @Summary Get Import Job
// @Tags Imports
// @Produce json
// @Param uuid path string true "Import job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ImportJobResponse}
// @Failure 400 {object} dto.APIResponse "Invalid UUID"
// @Failure 403 {object} dto.APIResponse "Access denied"
// @Failure 404 {object} dto.APIResponse "Import job not found"
// @Router /api/v1/imports/{uuid} [get]
func (h *ImportHandler) GetImportJob(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	jobUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid import job UUID", "INVALID_UUID", nil)
	}

	job, err := h.importFlow.GetImportJob(h.createRequestContext(c, "/api/v1/imports/:uuid"), jobUUID, ownerID)
	if err != nil {
		return h.importError(c, err, "Failed to get import job", "GET_IMPORT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Import job retrieved successfully", dto.NewImportJobResponse(job))
}

// ListImportJobs returns the user's import jobs with pagination
// @Summary List Import Jobs
// @Tags Imports
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(10)
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/imports [get]
func (h *ImportHandler) ListImportJobs(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	page, limit := paginationParams(c)

	jobs, err := h.importFlow.ListImportJobs(h.createRequestContext(c, "/api/v1/imports"), ownerID, limit, (page-1)*limit)
	if err != nil {
		log.Println("List import jobs failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list import jobs", "LIST_IMPORTS_FAILED", nil)
	}

	items := make([]*dto.ImportJobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, dto.NewImportJobResponse(job))
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Import jobs retrieved successfully", fiber.Map{
		"items": items,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
		},
	})
}

// GetImportProgress returns the latest progress snapshot for a running import
// @Summary Get Import Progress
// @Tags Imports
// @Produce json
// @Param uuid path string true "Import job UUID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Import job not found"
// @Router /api/v1/imports/{uuid}/progress [get]
func (h *ImportHandler) GetImportProgress(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	jobUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid import job UUID", "INVALID_UUID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/imports/:uuid/progress")

	// Ownership check before reading the cache.
	job, err := h.importFlow.GetImportJob(ctx, jobUUID, ownerID)
	if err != nil {
		return h.importError(c, err, "Failed to get import progress", "GET_PROGRESS_FAILED")
	}

	if h.progress != nil {
		event, err := h.progress.LatestProgress(ctx, jobUUID.String())
		if err != nil {
			log.Println("Progress snapshot read failed", err)
		}
		if event != nil {
			return h.SuccessResponse(c, fiber.StatusOK, "Import progress retrieved successfully", event)
		}
	}

	// No snapshot yet, fall back to the persisted counters.
	return h.SuccessResponse(c, fiber.StatusOK, "Import progress retrieved successfully", fiber.Map{
		"job_id":         job.UUID.String(),
		"status":         job.Status.String(),
		"rows_total":     job.RowsTotal,
		"rows_processed": job.RowsProcessed,
		"error_count":    job.ErrorCount,
	})
}

// DownloadImportErrors returns the job's row errors as an Excel file
// @Summary Download Import Errors
// @Tags Imports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param uuid path string true "Import job UUID"
// @Success 200 {string} string "Excel file"
// @Failure 404 {object} dto.APIResponse "Import job not found"
// @Router /api/v1/imports/{uuid}/errors [get]
func (h *ImportHandler) DownloadImportErrors(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	jobUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid import job UUID", "INVALID_UUID", nil)
	}

	filename, data, err := h.importFlow.ExportImportErrors(h.createRequestContext(c, "/api/v1/imports/:uuid/errors"), jobUUID, ownerID)
	if err != nil {
		return h.importError(c, err, "Failed to export import errors", "EXPORT_ERRORS_FAILED")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// CancelImport cancels a pending or processing import job
// @Summary Cancel Import Job
// @Tags Imports
// @Produce json
// @Param uuid path string true "Import job UUID"
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/imports/{uuid} [delete]
func (h *ImportHandler) CancelImport(c fiber.Ctx) error {
	ownerID, ok := h.ownerFromRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in request", "MISSING_USER_ID", nil)
	}

	jobUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid import job UUID", "INVALID_UUID", nil)
	}

	if err := h.importFlow.CancelImport(h.createRequestContext(c, "/api/v1/imports/:uuid"), jobUUID, ownerID); err != nil {
		if businessflow.IsImportNotCancellable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Import job is already in a terminal state", "IMPORT_NOT_CANCELLABLE", nil)
		}
		return h.importError(c, err, "Failed to cancel import job", "CANCEL_IMPORT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Import job cancelled successfully", nil)
}

// importError maps import business errors onto HTTP responses.
func (h *ImportHandler) importError(c fiber.Ctx, err error, fallbackMsg, fallbackCode string) error {
	if businessflow.IsImportJobNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Import job not found", "IMPORT_NOT_FOUND", nil)
	}
	if businessflow.IsImportAccessDenied(err) {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: import job belongs to another user", "IMPORT_ACCESS_DENIED", nil)
	}

	log.Println(fallbackMsg, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMsg, fallbackCode, nil)
}

// ownerFromRequest resolves the acting user from the X-User-ID header.
// Authentication is handled upstream of this service.
func (h *ImportHandler) ownerFromRequest(c fiber.Ctx) (uint, bool) {
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

// paginationParams parses page/limit query params with sane bounds.
func paginationParams(c fiber.Ctx) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(c.Query("page", "1")); err == nil && v > 0 {
		page = v
	}
	limit = 10
	if v, err := strconv.Atoi(c.Query("limit", "10")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *ImportHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
