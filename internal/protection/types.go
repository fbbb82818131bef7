package protection

import (
	"fmt"
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// Policy is the handling policy attached to a classification.
type Policy struct {
	EncryptionRequired bool   `json:"encryption_required"`
	RetentionDays      int    `json:"retention_days"`
	AccessModel        string `json:"access_model"`
}

// ClassificationResult is a classification attached to a record.
type ClassificationResult struct {
	Level         models.Classification `json:"level"`
	Score         int                   `json:"score"`
	Policy        Policy                `json:"policy"`
	MatchedFields []string              `json:"matched_fields,omitempty"`
}

// Envelope is the ciphertext container. The key version lets old
// ciphertext decrypt after a key rotation.
type Envelope struct {
	Classification models.Classification `json:"classification"`
	KeyVersion     int                   `json:"key_version"`
	Nonce          []byte                `json:"nonce"`
	Ciphertext     []byte                `json:"ciphertext"`
}

// ConsentRecord tracks one per-purpose grant or withdrawal.
type ConsentRecord struct {
	Purpose   string    `json:"purpose"`
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject is a data subject with personal data under management.
type Subject struct {
	ID         string                   `json:"id"`
	Data       map[string]any           `json:"data"`
	Restricted map[string]bool          `json:"restricted,omitempty"`
	Consents   map[string]ConsentRecord `json:"consents,omitempty"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// PendingErasure schedules the permanent purge of an erased subject
// after the grace period.
type PendingErasure struct {
	SubjectID   string    `json:"subject_id"`
	RequestedAt time.Time `json:"requested_at"`
	PurgeAt     time.Time `json:"purge_at"`
}

// AccessExport is the right-of-access response.
type AccessExport struct {
	SubjectID     string                   `json:"subject_id"`
	PersonalData  map[string]any           `json:"personal_data"`
	AccessHistory []AccessRecord           `json:"access_history"`
	Consents      map[string]ConsentRecord `json:"consents"`
	ExportedAt    time.Time                `json:"exported_at"`
}

// PortabilityBundle is the structured export for the right of
// portability.
type PortabilityBundle struct {
	SubjectID  string         `json:"subject_id"`
	Format     string         `json:"format"`
	Data       map[string]any `json:"data"`
	ExportedAt time.Time      `json:"exported_at"`
}

// AccessRecord is one entry in the data access log.
type AccessRecord struct {
	Actor     string       `json:"actor"`
	Resource  string       `json:"resource"`
	Action    string       `json:"action"`
	Origin    string       `json:"origin,omitempty"`
	Sensitive bool         `json:"sensitive"`
	Timestamp time.Time    `json:"timestamp"`
	Metadata  models.JSONB `json:"metadata,omitempty"`
}

// RetentionStatus is the evaluation of one retention schedule.
type RetentionStatus struct {
	Schedule string    `json:"schedule"`
	Cutoff   time.Time `json:"cutoff"`
	Disposal string    `json:"disposal"`
}

// RetentionReport summarizes one retention sweep. Deletion itself is
// the owning store's job; the engine only evaluates and reports.
type RetentionReport struct {
	CheckedAt time.Time         `json:"checked_at"`
	Schedules []RetentionStatus `json:"schedules"`
	Purged    []string          `json:"purged,omitempty"`
}

// Stats is the read-only aggregate for presentation code.
type Stats struct {
	ClassifiedRecords int `json:"classified_records"`
	EncryptionOps     int `json:"encryption_ops"`
	DecryptionOps     int `json:"decryption_ops"`
	MaskedRecords     int `json:"masked_records"`
	AnonymizedRecords int `json:"anonymized_records"`
	Subjects          int `json:"subjects"`
	PendingErasures   int `json:"pending_erasures"`
	AccessEvents      int `json:"access_events"`
	SuspiciousSignals int `json:"suspicious_signals"`
}

// EncryptionError reports a failed encryption, including the
// unrecoverable unknown-classification case.
type EncryptionError struct {
	Reason string
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %s", e.Reason)
}

// DecryptionError reports a failed decryption.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}
