package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Import-related errors
	ErrImportJobNotFound     = errors.New("import job not found")
	ErrImportJobNotPending   = errors.New("import job already started")
	ErrImportAccessDenied    = errors.New("import job access denied")
	ErrImportFileMissing     = errors.New("import file is missing")
	ErrImportFileEmpty       = errors.New("import file is empty")
	ErrImportFileTooLarge    = errors.New("import file exceeds the size limit")
	ErrImportTooManyRows     = errors.New("import file exceeds the row limit")
	ErrImportNoDataRows      = errors.New("import file has no data rows")
	ErrImportLowConfidence   = errors.New("no phone column detected with sufficient confidence")
	ErrImportColumnNotFound  = errors.New("mapped column not found in file headers")
	ErrImportHasNoContacts   = errors.New("import job has no contacts")
	ErrImportStillProcessing = errors.New("import job is still processing")
	ErrImportCancelled       = errors.New("import job was cancelled")
	ErrImportNotCancellable  = errors.New("import job is already in a terminal state")

	// Campaign-related errors
	ErrCampaignNotFound          = errors.New("campaign not found")
	ErrCampaignAccessDenied      = errors.New("campaign access denied")
	ErrCampaignNotStartable      = errors.New("campaign can only be started from draft or paused")
	ErrCampaignNotPausable       = errors.New("campaign can only be paused while active")
	ErrCampaignAlreadyTerminal   = errors.New("campaign is already in a terminal state")
	ErrCampaignNameRequired      = errors.New("campaign name is required")
	ErrCampaignMessageRequired   = errors.New("campaign message text is required")
	ErrCampaignImportRequired    = errors.New("campaign requires an import job with contacts")
	ErrCampaignAlreadyProcessing = errors.New("campaign is already being processed")
	ErrCampaignUUIDRequired      = errors.New("campaign UUID is required")

	// Gateway errors
	ErrCircuitOpen       = errors.New("gateway circuit is open")
	ErrGatewayAuthFailed = errors.New("gateway authentication failed")

	ErrCacheNotAvailable = errors.New("cache not available")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsImportJobNotFound(err error) bool {
	return errors.Is(err, ErrImportJobNotFound)
}

func IsImportAccessDenied(err error) bool {
	return errors.Is(err, ErrImportAccessDenied)
}

func IsImportFileTooLarge(err error) bool {
	return errors.Is(err, ErrImportFileTooLarge)
}

func IsImportTooManyRows(err error) bool {
	return errors.Is(err, ErrImportTooManyRows)
}

func IsImportLowConfidence(err error) bool {
	return errors.Is(err, ErrImportLowConfidence)
}

func IsImportColumnNotFound(err error) bool {
	return errors.Is(err, ErrImportColumnNotFound)
}

func IsImportJobNotPending(err error) bool {
	return errors.Is(err, ErrImportJobNotPending)
}

func IsImportStillProcessing(err error) bool {
	return errors.Is(err, ErrImportStillProcessing)
}

func IsImportHasNoContacts(err error) bool {
	return errors.Is(err, ErrImportHasNoContacts)
}

func IsImportCancelled(err error) bool {
	return errors.Is(err, ErrImportCancelled)
}

func IsImportNotCancellable(err error) bool {
	return errors.Is(err, ErrImportNotCancellable)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignNotStartable(err error) bool {
	return errors.Is(err, ErrCampaignNotStartable)
}

func IsCampaignNotPausable(err error) bool {
	return errors.Is(err, ErrCampaignNotPausable)
}

func IsCampaignAlreadyTerminal(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyTerminal)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignAlreadyProcessing(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyProcessing)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsGatewayAuthFailed(err error) bool {
	return errors.Is(err, ErrGatewayAuthFailed)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}
