package domain

import "time"

// StagedPayload is one record in the staging area: the canonical
// encoding of a Record plus its position within the batch. Payloads are
// written once, never mutated, and superseded wholesale by the next
// run's batch.
type StagedPayload struct {
	// BatchID ties the payload to the run that staged it.
	BatchID int64

	// Sequence is the 1-based position in fetch order. It increases by
	// one per record regardless of page boundaries.
	Sequence int64

	// Payload is the canonical encoding produced by EncodeCanonical.
	Payload string

	// IngestedAt is the run's start instant. Every payload of a batch
	// carries the same timestamp.
	IngestedAt time.Time
}

// StagingBatch describes one run's staged load and the completeness
// check that gates promotion.
type StagingBatch struct {
	// BatchID is the staging-store-assigned id, monotonically
	// increasing across runs of the same dataset.
	BatchID int64

	// DatasetID identifies the dataset the batch belongs to.
	DatasetID string

	// Expected is the total record count the source reported at run
	// start.
	Expected int64

	// Observed is the number of payloads actually staged.
	Observed int64

	// StartedAt is the run's start instant, shared by every payload.
	StartedAt time.Time
}

// Complete reports whether the batch may be promoted. An incomplete
// batch must never reach the destination.
func (b *StagingBatch) Complete() bool {
	return b.Observed == b.Expected
}
