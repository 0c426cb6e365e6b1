package importer

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/textwave/textwave/models"
	"github.com/textwave/textwave/utils"
)

// Sentinel errors surfaced to the business layer.
var (
	ErrFileNotFound       = errors.New("import file not found")
	ErrEmptyFile          = errors.New("import file is empty")
	ErrFileTooLarge       = errors.New("import file exceeds the size limit")
	ErrTooManyRows        = errors.New("import file exceeds the row limit")
	ErrNoDataRows         = errors.New("import file has no data rows")
	ErrLowPhoneConfidence = errors.New("no phone column detected with sufficient confidence")
	ErrColumnNotFound     = errors.New("mapped column not found in file headers")
)

// Mapping is an explicit caller-provided column assignment that bypasses
// heuristic detection.
type Mapping struct {
	PhoneColumn       string   `json:"phone_column"`
	NameColumn        string   `json:"name_column,omitempty"`
	TagColumns        []string `json:"tag_columns,omitempty"`
	SkipInvalidPhones bool     `json:"skip_invalid_phones,omitempty"`
}

// ChunkSink persists one chunk of parsed contacts together with the job's
// progress counters. Implementations run the whole chunk in a single unit
// of work and return the number of contacts actually inserted.
type ChunkSink interface {
	PersistChunk(ctx context.Context, job *models.ImportJob, contacts []*models.Contact, rowErrors []models.ImportError) (int64, error)
}

// Summary is the outcome of a parse run. The caller decides the final job
// status from it.
type Summary struct {
	RowsTotal  int64
	Processed  int64
	Successful int64
	ErrorCount int64
	Stopped    bool // true when the error cap aborted the run
	Duration   time.Duration
}

// Parser streams a CSV file into contacts. One Parser is safe for
// sequential reuse; each ParseFile call is a self-contained run.
type Parser struct {
	sink     ChunkSink
	progress ProgressSink
	phones   *utils.PhoneValidator
	logger   *log.Logger

	maxFileSize      int64
	maxRows          int64
	chunkSize        int
	sampleSize       int
	progressInterval time.Duration
}

// NewParser creates a parser with the default limits.
func NewParser(sink ChunkSink, progress ProgressSink, phones *utils.PhoneValidator, logger *log.Logger) *Parser {
	return &Parser{
		sink:             sink,
		progress:         progress,
		phones:           phones,
		logger:           logger,
		maxFileSize:      utils.MaxImportFileSize,
		maxRows:          utils.MaxImportRows,
		chunkSize:        utils.BulkInsertSize,
		sampleSize:       utils.ColumnSampleSize,
		progressInterval: utils.ProgressUpdateInterval,
	}
}

// ParseFile analyzes and imports path using heuristic column detection.
// It mutates job in memory (hash, metadata, counters); persistence happens
// through the chunk sink.
func (p *Parser) ParseFile(ctx context.Context, job *models.ImportJob, path string) (*Summary, error) {
	return p.parse(ctx, job, path, nil)
}

// ParseFileWithMapping imports path using the caller's explicit column
// mapping instead of detection.
func (p *Parser) ParseFileWithMapping(ctx context.Context, job *models.ImportJob, path string, mapping *Mapping) (*Summary, error) {
	if mapping == nil || mapping.PhoneColumn == "" {
		return nil, fmt.Errorf("%w: phone column is required", ErrColumnNotFound)
	}
	return p.parse(ctx, job, path, mapping)
}

func (p *Parser) parse(ctx context.Context, job *models.ImportJob, path string, mapping *Mapping) (*Summary, error) {
	start := utils.UTCNow()

	if err := p.validateFile(path); err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash import file: %w", err)
	}
	job.SHA256 = hash

	sample, err := readSample(path)
	if err != nil {
		return nil, err
	}
	encoding := DetectEncoding(sample)
	delimiter := DetectDelimiter(sample)
	job.Metadata.Encoding = encoding
	job.Metadata.Delimiter = string(delimiter)

	headers, sampleRows, err := p.readHeadersAndSample(path, encoding, delimiter)
	if err != nil {
		return nil, err
	}

	// The row count runs before detection so a header-only file fails as
	// "no data rows" rather than as a detection miss.
	total, err := p.countDataRows(path, encoding, delimiter)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrNoDataRows
	}
	if total > p.maxRows {
		return nil, fmt.Errorf("%w: %d rows (limit %d)", ErrTooManyRows, total, p.maxRows)
	}
	job.RowsTotal = total

	plan, err := p.buildPlan(job, headers, sampleRows, mapping)
	if err != nil {
		return nil, err
	}

	summary, err := p.processRows(ctx, job, path, encoding, delimiter, plan, total, start)
	if err != nil {
		return nil, err
	}
	summary.Duration = utils.UTCNow().Sub(start)
	return summary, nil
}

// columnPlan is the resolved column assignment a parse run uses.
type columnPlan struct {
	phoneIdx      int
	phoneFallback []int
	nameIdx       int // -1 when absent
	tagIdxs       []int
	headers       []string
	skipInvalid   bool
}

func (p *Parser) buildPlan(job *models.ImportJob, headers []string, sampleRows [][]string, mapping *Mapping) (*columnPlan, error) {
	if mapping != nil {
		return p.buildMappedPlan(job, headers, mapping)
	}

	det := DetectColumns(headers, sampleRows, p.phones)
	if det.Phone == nil {
		return nil, fmt.Errorf("%w: %s", ErrLowPhoneConfidence, det.Guidance)
	}

	job.Metadata.PhoneColumn = utils.ToPtr(det.Phone.Column)
	job.Metadata.PhoneConfidence = utils.ToPtr(det.Phone.Score)
	if det.Name != nil {
		job.Metadata.NameColumn = utils.ToPtr(det.Name.Column)
		job.Metadata.NameConfidence = utils.ToPtr(det.Name.Score)
	}

	plan := &columnPlan{
		phoneIdx: det.Phone.Index,
		nameIdx:  -1,
		headers:  headers,
	}
	for _, cand := range det.PhoneCandidates {
		plan.phoneFallback = append(plan.phoneFallback, cand.Index)
	}
	if det.Name != nil {
		plan.nameIdx = det.Name.Index
	}
	for i := range headers {
		if i != plan.phoneIdx && i != plan.nameIdx {
			plan.tagIdxs = append(plan.tagIdxs, i)
		}
	}
	return plan, nil
}

func (p *Parser) buildMappedPlan(job *models.ImportJob, headers []string, mapping *Mapping) (*columnPlan, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	phoneIdx, ok := index[mapping.PhoneColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, mapping.PhoneColumn)
	}

	plan := &columnPlan{
		phoneIdx:    phoneIdx,
		nameIdx:     -1,
		headers:     headers,
		skipInvalid: mapping.SkipInvalidPhones,
	}
	if mapping.NameColumn != "" {
		nameIdx, ok := index[mapping.NameColumn]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, mapping.NameColumn)
		}
		plan.nameIdx = nameIdx
	}
	for _, tc := range mapping.TagColumns {
		idx, ok := index[tc]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, tc)
		}
		plan.tagIdxs = append(plan.tagIdxs, idx)
	}

	// An explicit mapping is trusted outright.
	job.Metadata.MappingApplied = true
	job.Metadata.PhoneColumn = utils.ToPtr(mapping.PhoneColumn)
	job.Metadata.PhoneConfidence = utils.ToPtr(100.0)
	if mapping.NameColumn != "" {
		job.Metadata.NameColumn = utils.ToPtr(mapping.NameColumn)
		job.Metadata.NameConfidence = utils.ToPtr(100.0)
	}
	return plan, nil
}

func (p *Parser) processRows(ctx context.Context, job *models.ImportJob, path, encoding string, delimiter rune, plan *columnPlan, total int64, start time.Time) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	reader := newCSVReader(f, encoding, delimiter)
	if _, err := reader.Read(); err != nil { // header row
		return nil, fmt.Errorf("failed to re-read headers: %w", err)
	}

	var (
		contacts     []*models.Contact
		rowErrors    []models.ImportError
		lastProgress time.Time
		rowNum       int
		stopped      bool
	)

	flush := func() error {
		if len(contacts) == 0 && len(rowErrors) == 0 {
			return nil
		}
		if _, err := p.sink.PersistChunk(ctx, job, contacts, rowErrors); err != nil {
			return err
		}
		contacts = contacts[:0]
		rowErrors = rowErrors[:0]

		if time.Since(lastProgress) >= p.progressInterval {
			lastProgress = time.Now()
			p.emitProgress(ctx, job, total, start)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowNum++
			rowErrors = append(rowErrors, models.ImportError{Row: rowNum, Message: fmt.Sprintf("malformed row: %v", err)})
			continue
		}
		rowNum++

		contact, rowErr := p.rowToContact(job, plan, record, rowNum)
		switch {
		case contact != nil:
			contacts = append(contacts, contact)
		case rowErr != nil:
			rowErrors = append(rowErrors, *rowErr)
		}

		if len(contacts)+len(rowErrors) >= p.chunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
			if job.ErrorCount >= utils.MaxErrorsPerJob {
				stopped = true
				break
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	p.emitFinalProgress(ctx, job, total, start, stopped)

	return &Summary{
		RowsTotal:  total,
		Processed:  job.RowsProcessed,
		Successful: job.Metadata.RowsSuccessful,
		ErrorCount: job.ErrorCount,
		Stopped:    stopped,
	}, nil
}

// rowToContact converts one CSV record. It returns (nil, nil) when the row
// is silently skipped under an explicit mapping with SkipInvalidPhones.
func (p *Parser) rowToContact(job *models.ImportJob, plan *columnPlan, record []string, rowNum int) (*models.Contact, *models.ImportError) {
	cell := func(idx int) string {
		if idx >= 0 && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	column := func(idx int) string {
		if idx >= 0 && idx < len(plan.headers) {
			return plan.headers[idx]
		}
		return ""
	}

	rawPhone := cell(plan.phoneIdx)
	phoneIdx := plan.phoneIdx
	for _, fb := range plan.phoneFallback {
		if rawPhone != "" {
			break
		}
		rawPhone = cell(fb)
		phoneIdx = fb
	}
	if rawPhone == "" {
		if plan.skipInvalid {
			return nil, nil
		}
		return nil, &models.ImportError{Row: rowNum, Column: column(plan.phoneIdx), Message: "empty phone value"}
	}

	info := p.phones.Validate(rawPhone)
	if !info.Valid {
		if plan.skipInvalid {
			return nil, nil
		}
		return nil, &models.ImportError{Row: rowNum, Column: column(phoneIdx), Value: rawPhone, Message: "invalid phone value"}
	}

	contact := &models.Contact{
		ImportID:     job.ID,
		Phone:        info.E164,
		CSVRowNumber: rowNum,
		Tags:         models.ContactTags{},
		RawData:      models.RawRow{},
	}

	if plan.nameIdx >= 0 {
		if name := cell(plan.nameIdx); name != "" {
			if len(name) > utils.MaxContactNameLength {
				name = name[:utils.MaxContactNameLength]
			}
			contact.Name = utils.ToPtr(name)
		}
	}

	for _, idx := range plan.tagIdxs {
		if len(contact.Tags) >= utils.MaxTagsPerContact {
			break
		}
		v := cell(idx)
		if v == "" {
			continue
		}
		if len(v) > utils.MaxTagValueLength {
			v = v[:utils.MaxTagValueLength]
		}
		contact.Tags[plan.headers[idx]] = v
	}

	for i, h := range plan.headers {
		contact.RawData[h] = cell(i)
	}

	return contact, nil
}

func (p *Parser) emitProgress(ctx context.Context, job *models.ImportJob, total int64, start time.Time) {
	if p.progress == nil {
		return
	}

	elapsed := utils.UTCNow().Sub(start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(job.RowsProcessed) / elapsed
	}

	event := ProgressEvent{
		Type:                "import_progress",
		JobID:               job.UUID,
		Processed:           job.RowsProcessed,
		Successful:          job.Metadata.RowsSuccessful,
		TotalRows:           total,
		Percent:             percent(job.RowsProcessed, total),
		Errors:              job.Errors,
		ErrorCount:          job.ErrorCount,
		HasCriticalErrors:   job.ErrorCount >= utils.MaxErrorsPerJob,
		EstimatedCompletion: formatETA(job.RowsProcessed, total, rate),
		ProcessingRate:      rate,
	}
	if err := p.progress.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Printf("import %s: failed to publish progress: %v", job.UUID, err)
	}
}

func (p *Parser) emitFinalProgress(ctx context.Context, job *models.ImportJob, total int64, start time.Time, stopped bool) {
	if stopped && p.logger != nil {
		p.logger.Printf("import %s: aborted after reaching the error cap (%d errors)", job.UUID, job.ErrorCount)
	}
	p.emitProgress(ctx, job, total, start)
}

func (p *Parser) validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("failed to stat import file: %w", err)
	}
	if info.Size() == 0 {
		return ErrEmptyFile
	}
	if info.Size() > p.maxFileSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, info.Size(), p.maxFileSize)
	}
	return nil
}

func (p *Parser) readHeadersAndSample(path, encoding string, delimiter rune) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	reader := newCSVReader(f, encoding, delimiter)
	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read headers: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	if len(headers) > 0 {
		headers[0] = StripBOM(headers[0])
	}

	var sampleRows [][]string
	for len(sampleRows) < p.sampleSize {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		sampleRows = append(sampleRows, record)
	}
	return headers, sampleRows, nil
}

func (p *Parser) countDataRows(path, encoding string, delimiter rune) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return countRows(newCSVReader(f, encoding, delimiter))
}

// countRows counts the data rows behind the header. Malformed rows still
// count toward the limit; a non-CSV reader error aborts the count because
// the stream will never reach EOF.
func countRows(reader *csv.Reader) (int64, error) {
	var count int64
	header := true
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return 0, fmt.Errorf("failed to count import rows: %w", err)
		}
		if header {
			header = false
			continue
		}
		count++
	}
	return count, nil
}

func newCSVReader(r io.Reader, encoding string, delimiter rune) *csv.Reader {
	reader := csv.NewReader(DecodingReader(r, encoding))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 8192)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, sniffSampleSize)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}
	return buf[:n], nil
}

// percent is rounded and clamped to 0-100; rows_processed can briefly
// overshoot rows_total when malformed rows are re-counted as errors.
func percent(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := math.Round(float64(processed) / float64(total) * 100)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// formatETA renders the remaining time as a coarse human string.
func formatETA(processed, total int64, rate float64) string {
	if rate <= 0 || processed >= total {
		return ""
	}
	remaining := float64(total-processed) / rate
	switch {
	case remaining < 60:
		return fmt.Sprintf("~%ds", int(remaining))
	case remaining < 3600:
		return fmt.Sprintf("~%dm", int(remaining/60))
	default:
		return fmt.Sprintf("~%dh", int(remaining/3600))
	}
}
