package protection

import (
	"errors"
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

var (
	ErrSubjectNotFound = errors.New("data subject not found")
	ErrFieldRestricted = errors.New("field is restricted from processing")
)

// UpsertSubject registers or replaces a data subject's working record.
func (e *Engine) UpsertSubject(id string, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[id]
	if !ok {
		subject = &Subject{
			ID:         id,
			Restricted: make(map[string]bool),
			Consents:   make(map[string]ConsentRecord),
		}
		e.subjects[id] = subject
	}
	subject.Data = cloneRecord(data)
	subject.UpdatedAt = e.now()
}

// RecordConsent stores a per-purpose grant or withdrawal.
func (e *Engine) RecordConsent(subjectID, purpose string, granted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	subject.Consents[purpose] = ConsentRecord{
		Purpose:   purpose,
		Granted:   granted,
		UpdatedAt: e.now(),
	}
	return nil
}

// RightOfAccess exports the subject's personal data, recent access
// history and consent state. An erased or unknown subject yields an
// empty export rather than an error.
func (e *Engine) RightOfAccess(subjectID string) *AccessExport {
	e.mu.Lock()
	defer e.mu.Unlock()

	export := &AccessExport{
		SubjectID:    subjectID,
		PersonalData: map[string]any{},
		Consents:     map[string]ConsentRecord{},
		ExportedAt:   e.now(),
	}
	if subject, ok := e.subjects[subjectID]; ok {
		export.PersonalData = cloneRecord(subject.Data)
		for purpose, consent := range subject.Consents {
			export.Consents[purpose] = consent
		}
	}
	for _, rec := range e.accessLog {
		if rec.Actor == subjectID || rec.Resource == subjectID {
			export.AccessHistory = append(export.AccessHistory, rec)
		}
	}

	e.publishLocked(models.EventExportRequested, subjectID, models.JSONB{"right": "access"})
	return export
}

// RightOfRectification applies a partial update to the subject's data.
// Restricted fields cannot be modified.
func (e *Engine) RightOfRectification(subjectID string, updates map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	for field := range updates {
		if subject.Restricted[field] {
			return ErrFieldRestricted
		}
	}
	for field, value := range updates {
		subject.Data[field] = value
	}
	subject.UpdatedAt = e.now()

	e.publishLocked(models.EventDataModified, subjectID, models.JSONB{"right": "rectification"})
	return nil
}

// RightOfErasure removes the subject from working memory immediately
// and schedules the permanent purge after the grace period, so audit
// and compliance holds stay satisfiable in between.
func (e *Engine) RightOfErasure(subjectID string) (*PendingErasure, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subjects[subjectID]; !ok {
		return nil, ErrSubjectNotFound
	}
	delete(e.subjects, subjectID)

	now := e.now()
	erasure := &PendingErasure{
		SubjectID:   subjectID,
		RequestedAt: now,
		PurgeAt:     now.Add(time.Duration(e.config.ErasureGraceDays) * 24 * time.Hour),
	}
	e.erasures[subjectID] = erasure

	e.publishLocked(models.EventDataDeleted, subjectID, models.JSONB{
		"right":    "erasure",
		"purge_at": erasure.PurgeAt.Format(time.RFC3339),
	})
	e.logger.Info("erasure scheduled", "subject_id", subjectID, "purge_at", erasure.PurgeAt)
	return erasure, nil
}

// RightOfRestriction flags fields as excluded from further processing.
func (e *Engine) RightOfRestriction(subjectID string, fields []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	for _, field := range fields {
		subject.Restricted[field] = true
	}
	subject.UpdatedAt = e.now()
	return nil
}

// RightOfPortability exports a structured bundle of the subject's
// unrestricted data.
func (e *Engine) RightOfPortability(subjectID string) (*PortabilityBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[subjectID]
	if !ok {
		return nil, ErrSubjectNotFound
	}

	data := make(map[string]any, len(subject.Data))
	for field, value := range subject.Data {
		if subject.Restricted[field] {
			continue
		}
		data[field] = value
	}

	e.publishLocked(models.EventExportRequested, subjectID, models.JSONB{"right": "portability"})
	return &PortabilityBundle{
		SubjectID:  subjectID,
		Format:     "json",
		Data:       data,
		ExportedAt: e.now(),
	}, nil
}

// RightOfObjection withdraws consent for one processing purpose.
func (e *Engine) RightOfObjection(subjectID, purpose string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	subject, ok := e.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	subject.Consents[purpose] = ConsentRecord{
		Purpose:   purpose,
		Granted:   false,
		UpdatedAt: e.now(),
	}
	return nil
}

// publishLocked emits while e.mu is held; the bus never blocks, so
// holding the lock across the publish is safe.
func (e *Engine) publishLocked(eventType models.EventType, subjectID string, metadata models.JSONB) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(models.SecurityEvent{
		Type:      eventType,
		ActorID:   subjectID,
		Resource:  subjectID,
		Timestamp: e.now(),
		Metadata:  metadata,
	})
}

func cloneRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
