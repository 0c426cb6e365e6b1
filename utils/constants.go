package utils

import (
	"time"
)

// Import pipeline constants
const (
	// MaxImportFileSize is the largest CSV upload accepted (100 MB)
	MaxImportFileSize = 100 * 1024 * 1024

	// MaxImportRows is the hard cap on data rows per import
	MaxImportRows = 1_000_000

	// BulkInsertSize is the number of contacts inserted per database round trip
	BulkInsertSize = 1000

	// ColumnSampleSize is the number of rows sampled for column detection
	ColumnSampleSize = 1000

	// MinPhoneConfidence is the lowest detection score accepted for a phone column
	MinPhoneConfidence = 30.0

	// MinNameConfidence is the lowest detection score accepted for a name column
	MinNameConfidence = 20.0

	// MaxPhoneCandidates is the number of alternative phone columns reported
	MaxPhoneCandidates = 3

	// MaxErrorsPerJob aborts an import once this many row errors accumulate
	MaxErrorsPerJob = 10000

	// ErrorSampleSize is the number of row errors persisted on the job record
	ErrorSampleSize = 100

	// ProgressUpdateInterval is the minimum spacing between progress events
	ProgressUpdateInterval = 500 * time.Millisecond
)

// Contact shaping constants
const (
	// MaxContactNameLength truncates imported names
	MaxContactNameLength = 100

	// MaxTagValueLength truncates imported tag values
	MaxTagValueLength = 50

	// MaxTagsPerContact caps the tags stored per contact
	MaxTagsPerContact = 20
)

// Virtual sender constants
const (
	// SenderMaxConcurrent is the number of workers draining a micro-batch
	SenderMaxConcurrent = 2

	// SenderMicroBatchSize is the number of contacts sent per micro-batch
	SenderMicroBatchSize = 10

	// SenderChunkSize is the number of contacts fetched per database page
	SenderChunkSize = 100

	// SenderRateLimitDelay separates consecutive micro-batches
	SenderRateLimitDelay = 200 * time.Millisecond

	// SenderDelayBetweenSMS is the per-message pacing interval
	SenderDelayBetweenSMS = 300 * time.Millisecond

	// SenderDelayBetweenChunks separates consecutive contact pages
	SenderDelayBetweenChunks = 500 * time.Millisecond

	// BreakerFailureThreshold opens the circuit after this many consecutive send failures
	BreakerFailureThreshold = 5

	// BreakerOpenTimeout is how long the circuit stays open before probing
	BreakerOpenTimeout = 60 * time.Second

	// MaxConcurrentCampaigns bounds campaigns processed at once
	MaxConcurrentCampaigns = 5
)
