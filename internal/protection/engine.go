package protection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/models"
)

// Engine is the data protection service: classification, envelope
// encryption, masking, anonymization, retention, subject rights and
// access logging. All mutation happens under one mutex.
type Engine struct {
	config config.ProtectionConfig
	crypto *Cryptor
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	subjects  map[string]*Subject
	erasures  map[string]*PendingErasure
	accessLog []AccessRecord
	stats     Stats
}

type EngineOption func(*Engine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithEngineClock overrides the time source (useful for tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

func NewEngine(cfg config.ProtectionConfig, bus *events.Bus, opts ...EngineOption) *Engine {
	if cfg.ErasureGraceDays == 0 {
		cfg.ErasureGraceDays = 30
	}
	if cfg.SensitiveAccessThreshold == 0 {
		cfg.SensitiveAccessThreshold = 50
	}
	if cfg.DistinctOriginThreshold == 0 {
		cfg.DistinctOriginThreshold = 3
	}

	e := &Engine{
		config:   cfg,
		crypto:   NewCryptor(cfg.MasterKey),
		bus:      bus,
		logger:   slog.Default(),
		now:      time.Now,
		subjects: make(map[string]*Subject),
		erasures: make(map[string]*PendingErasure),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify runs the field-name classifier and counts the operation.
func (e *Engine) Classify(record map[string]any) ClassificationResult {
	result := ClassifyData(record)
	e.mu.Lock()
	e.stats.ClassifiedRecords++
	e.mu.Unlock()
	return result
}

// Encrypt seals a payload under the key for its classification.
func (e *Engine) Encrypt(payload []byte, level models.Classification) (*Envelope, error) {
	env, err := e.crypto.Encrypt(payload, level)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.stats.EncryptionOps++
	e.mu.Unlock()
	return env, nil
}

// Decrypt opens an envelope, selecting the historical key recorded in
// it.
func (e *Engine) Decrypt(env *Envelope) ([]byte, error) {
	payload, err := e.crypto.Decrypt(env)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.stats.DecryptionOps++
	e.mu.Unlock()
	return payload, nil
}

// RotateKey bumps the encryption key version. Old envelopes still
// decrypt through their recorded version.
func (e *Engine) RotateKey() int {
	version := e.crypto.RotateKey()
	e.logger.Info("encryption key rotated", "version", version)
	return version
}

// Mask applies format-aware masking and counts the operation.
func (e *Engine) Mask(record map[string]any, fields []string) map[string]any {
	masked := MaskData(record, fields)
	e.mu.Lock()
	e.stats.MaskedRecords++
	e.mu.Unlock()
	return masked
}

// Anonymize removes and generalizes fields, tagging the result.
func (e *Engine) Anonymize(record map[string]any, opts AnonymizeOptions) map[string]any {
	out := AnonymizeData(record, opts, e.now())
	e.mu.Lock()
	e.stats.AnonymizedRecords++
	e.mu.Unlock()
	return out
}

// GetStats returns a copy of the aggregate counters.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := e.stats
	stats.Subjects = len(e.subjects)
	stats.PendingErasures = len(e.erasures)
	stats.AccessEvents = len(e.accessLog)
	return stats
}

func (e *Engine) publish(eventType models.EventType, actorID, resource string, metadata models.JSONB) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(models.SecurityEvent{
		Type:      eventType,
		ActorID:   actorID,
		Resource:  resource,
		Timestamp: e.now(),
		Metadata:  metadata,
	})
}
