package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"github.com/textwave/textwave/app/importer"
	"github.com/textwave/textwave/app/middleware"
	"github.com/textwave/textwave/models"
	"github.com/textwave/textwave/repository"
	"github.com/textwave/textwave/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportFlow coordinates contact import jobs end to end: job creation, the
// streaming parse, chunk persistence and final status resolution.
type ImportFlow interface {
	CreateImportJob(ctx context.Context, ownerID uint, filename string, fileSize int64) (*models.ImportJob, error)
	// RunImport executes the parse for a pending job. mapping is optional;
	// when nil, columns are detected heuristically.
	RunImport(ctx context.Context, jobUUID uuid.UUID, path string, mapping *importer.Mapping) error
	GetImportJob(ctx context.Context, jobUUID uuid.UUID, ownerID uint) (*models.ImportJob, error)
	ListImportJobs(ctx context.Context, ownerID uint, limit, offset int) ([]*models.ImportJob, error)
	// CancelImport marks a pending or processing job cancelled. A running
	// parse observes the stored status at its next chunk boundary and
	// exits; contacts inserted before that point are kept.
	CancelImport(ctx context.Context, jobUUID uuid.UUID, ownerID uint) error
	// ExportImportErrors renders the job's recorded row errors as an Excel
	// workbook and returns the suggested filename along with the bytes.
	ExportImportErrors(ctx context.Context, jobUUID uuid.UUID, ownerID uint) (string, []byte, error)
}

// ImportFlowImpl implements ImportFlow and serves as the parser's chunk sink.
type ImportFlowImpl struct {
	db          *gorm.DB
	jobRepo     repository.ImportJobRepository
	contactRepo repository.ContactRepository
	progress    importer.ProgressSink
	phones      *utils.PhoneValidator
	logger      *log.Logger
}

// NewImportFlow creates the import coordinator.
func NewImportFlow(
	db *gorm.DB,
	jobRepo repository.ImportJobRepository,
	contactRepo repository.ContactRepository,
	progress importer.ProgressSink,
	phones *utils.PhoneValidator,
	logger *log.Logger,
) *ImportFlowImpl {
	return &ImportFlowImpl{
		db:          db,
		jobRepo:     jobRepo,
		contactRepo: contactRepo,
		progress:    progress,
		phones:      phones,
		logger:      logger,
	}
}

// CreateImportJob registers a pending job for an uploaded file.
func (f *ImportFlowImpl) CreateImportJob(ctx context.Context, ownerID uint, filename string, fileSize int64) (*models.ImportJob, error) {
	if fileSize > utils.MaxImportFileSize {
		return nil, ErrImportFileTooLarge
	}

	job := &models.ImportJob{
		UUID:     uuid.New(),
		OwnerID:  ownerID,
		Filename: filename,
		FileSize: fileSize,
		Status:   models.ImportJobStatusPending,
		Errors:   models.ImportErrorList{},
	}
	if err := f.jobRepo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	return job, nil
}

// RunImport drives the full parse of a pending job. The job always reaches
// a terminal status: any error marks it failed with the cause recorded.
func (f *ImportFlowImpl) RunImport(ctx context.Context, jobUUID uuid.UUID, path string, mapping *importer.Mapping) error {
	job, err := f.jobRepo.ByUUID(ctx, jobUUID)
	if err != nil {
		return fmt.Errorf("failed to load import job: %w", err)
	}
	if job == nil {
		return ErrImportJobNotFound
	}
	if job.Status != models.ImportJobStatusPending {
		return ErrImportJobNotPending
	}

	job.Status = models.ImportJobStatusProcessing
	job.StartedAt = utils.UTCNowPtr()
	if err := f.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark import job processing: %w", err)
	}

	parser := importer.NewParser(f, f.progress, f.phones, f.logger)

	var summary *importer.Summary
	if mapping != nil {
		summary, err = parser.ParseFileWithMapping(ctx, job, path, mapping)
	} else {
		summary, err = parser.ParseFile(ctx, job, path)
	}
	if err != nil {
		if errors.Is(err, ErrImportCancelled) {
			// CancelImport already moved the job; the partial progress
			// written by the last chunk stands.
			if f.logger != nil {
				f.logger.Printf("import %s: parse stopped after cancellation", job.UUID)
			}
			return ErrImportCancelled
		}
		f.failImport(ctx, job, err)
		return translateParseError(err)
	}

	return f.completeImport(ctx, job, summary)
}

// PersistChunk implements importer.ChunkSink. The happy path is one bulk
// insert plus one progress update; a failed bulk insert degrades to per-row
// inserts with existence checks so one bad row cannot sink the chunk.
func (f *ImportFlowImpl) PersistChunk(ctx context.Context, job *models.ImportJob, contacts []*models.Contact, rowErrors []models.ImportError) (int64, error) {
	// Cancellation is cooperative: the stored status is re-read once per
	// chunk, so a cancel takes effect at the next boundary.
	current, err := f.jobRepo.ByID(ctx, job.ID)
	if err != nil {
		if f.logger != nil {
			f.logger.Printf("import %s: status re-read failed, continuing: %v", job.UUID, err)
		}
	} else if current != nil && current.Status == models.ImportJobStatusCancelled {
		return 0, ErrImportCancelled
	}

	prevDecile := decile(job.RowsProcessed, job.RowsTotal)

	inserted, err := f.contactRepo.BulkInsertIgnoreDups(ctx, contacts)
	if err != nil {
		if f.logger != nil {
			f.logger.Printf("import %s: bulk insert failed, falling back to row inserts: %v", job.UUID, err)
		}
		inserted = 0
		for _, c := range contacts {
			ok, rowErr := f.contactRepo.InsertIfAbsent(ctx, c)
			if rowErr != nil {
				rowErrors = append(rowErrors, models.ImportError{
					Row:     c.CSVRowNumber,
					Message: "database insert failed",
				})
				continue
			}
			if ok {
				inserted++
			}
		}
	}

	job.RowsProcessed += int64(len(contacts) + len(rowErrors))
	job.ErrorCount += int64(len(rowErrors))
	job.Metadata.RowsSuccessful += inserted
	for _, e := range rowErrors {
		if len(job.Errors) >= utils.ErrorSampleSize {
			break
		}
		job.Errors = append(job.Errors, e)
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.jobRepo.UpdateProgress(txCtx, job.ID, job.RowsTotal, job.RowsProcessed, job.ErrorCount, job.Errors, job.Metadata)
	})
	if err != nil {
		return inserted, err
	}

	middleware.CountImportRows("inserted", inserted)
	middleware.CountImportRows("duplicate", int64(len(contacts))-inserted)
	middleware.CountImportRows("error", int64(len(rowErrors)))

	if d := decile(job.RowsProcessed, job.RowsTotal); d > prevDecile && f.logger != nil {
		f.logger.Printf("import %s: %d%% done (%d/%d rows, %d errors)",
			job.UUID, d*10, job.RowsProcessed, job.RowsTotal, job.ErrorCount)
	}
	return inserted, nil
}

// completeImport applies the partial-success policy: a run with any
// successful row finishes as success, carrying its error sample. A run
// aborted at the critical error ceiling always fails, keeping whatever
// contacts were inserted before the abort.
func (f *ImportFlowImpl) completeImport(ctx context.Context, job *models.ImportJob, summary *importer.Summary) error {
	switch {
	case summary.Stopped:
		job.Status = models.ImportJobStatusFailed
	case summary.ErrorCount == 0:
		job.Status = models.ImportJobStatusSuccess
	case summary.Successful > 0:
		job.Status = models.ImportJobStatusSuccess
	default:
		job.Status = models.ImportJobStatusFailed
	}
	job.CompletedAt = utils.UTCNowPtr()

	if err := f.jobRepo.MarkCompleted(ctx, job.ID, job.Status, *job.CompletedAt); err != nil {
		return fmt.Errorf("failed to finalize import job: %w", err)
	}

	if f.logger != nil {
		f.logger.Printf("import %s finished with status %s: %d/%d rows imported, %d errors, took %s",
			job.UUID, job.Status, summary.Successful, summary.RowsTotal, summary.ErrorCount, summary.Duration)
	}
	return nil
}

func (f *ImportFlowImpl) failImport(ctx context.Context, job *models.ImportJob, cause error) {
	job.Status = models.ImportJobStatusFailed
	job.CompletedAt = utils.UTCNowPtr()
	job.ErrorCount++
	if len(job.Errors) < utils.ErrorSampleSize {
		job.Errors = append(job.Errors, models.ImportError{Row: 0, Message: cause.Error()})
	}

	if err := f.jobRepo.Update(ctx, job); err != nil && f.logger != nil {
		f.logger.Printf("import %s: failed to record failure: %v", job.UUID, err)
	}
}

func (f *ImportFlowImpl) GetImportJob(ctx context.Context, jobUUID uuid.UUID, ownerID uint) (*models.ImportJob, error) {
	job, err := f.jobRepo.ByUUID(ctx, jobUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import job: %w", err)
	}
	if job == nil {
		return nil, ErrImportJobNotFound
	}
	if job.OwnerID != ownerID {
		return nil, ErrImportAccessDenied
	}
	return job, nil
}

func (f *ImportFlowImpl) ListImportJobs(ctx context.Context, ownerID uint, limit, offset int) ([]*models.ImportJob, error) {
	filter := models.ImportJobFilter{OwnerID: &ownerID}
	return f.jobRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
}

// CancelImport moves a non-terminal job to cancelled with a guarded
// transition. The parse loop is not interrupted here; it notices the stored
// status at its next chunk boundary.
func (f *ImportFlowImpl) CancelImport(ctx context.Context, jobUUID uuid.UUID, ownerID uint) error {
	job, err := f.GetImportJob(ctx, jobUUID, ownerID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrImportNotCancellable
	}

	moved, err := f.jobRepo.UpdateStatusFrom(ctx, job.ID, job.Status, models.ImportJobStatusCancelled,
		map[string]any{"completed_at": utils.UTCNow()})
	if err != nil {
		return fmt.Errorf("failed to cancel import job: %w", err)
	}
	if !moved {
		// Lost a race with the parser finishing or another cancel.
		return ErrImportNotCancellable
	}

	if f.logger != nil {
		f.logger.Printf("import %s: cancelled by owner %d", job.UUID, ownerID)
	}
	return nil
}

// ExportImportErrors builds an Excel workbook from the job's error sample.
func (f *ImportFlowImpl) ExportImportErrors(ctx context.Context, jobUUID uuid.UUID, ownerID uint) (string, []byte, error) {
	job, err := f.GetImportJob(ctx, jobUUID, ownerID)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "Errors"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"row", "column", "value", "error"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for i, rowErr := range job.Errors {
		record := []string{strconv.Itoa(rowErr.Row), rowErr.Column, rowErr.Value, rowErr.Message}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("import_errors_%s.xlsx", job.UUID)
	return filename, buf.Bytes(), nil
}

// translateParseError maps parser sentinels onto business errors so
// handlers never import the parser package for error checks.
func translateParseError(err error) error {
	switch {
	case errors.Is(err, importer.ErrFileNotFound):
		return NewBusinessError("IMPORT_FILE_MISSING", ErrImportFileMissing.Error(), ErrImportFileMissing)
	case errors.Is(err, importer.ErrEmptyFile):
		return NewBusinessError("IMPORT_FILE_EMPTY", ErrImportFileEmpty.Error(), ErrImportFileEmpty)
	case errors.Is(err, importer.ErrFileTooLarge):
		return NewBusinessError("IMPORT_FILE_TOO_LARGE", ErrImportFileTooLarge.Error(), ErrImportFileTooLarge)
	case errors.Is(err, importer.ErrTooManyRows):
		return NewBusinessError("IMPORT_TOO_MANY_ROWS", ErrImportTooManyRows.Error(), ErrImportTooManyRows)
	case errors.Is(err, importer.ErrNoDataRows):
		return NewBusinessError("IMPORT_NO_DATA_ROWS", ErrImportNoDataRows.Error(), ErrImportNoDataRows)
	case errors.Is(err, importer.ErrLowPhoneConfidence):
		return NewBusinessError("IMPORT_LOW_CONFIDENCE", err.Error(), ErrImportLowConfidence)
	case errors.Is(err, importer.ErrColumnNotFound):
		return NewBusinessError("IMPORT_COLUMN_NOT_FOUND", err.Error(), ErrImportColumnNotFound)
	default:
		return err
	}
}

func decile(processed, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return processed * 10 / total
}
