package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/models"
)

// Store persists audit events to Postgres so the in-memory audit log
// survives restarts. It implements the audit engine's SnapshotStore.
type Store struct {
	db *sqlx.DB
}

func New(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the audit tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			actor_id    TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			session_id  TEXT NOT NULL DEFAULT '',
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			resource    TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			risk        TEXT NOT NULL,
			annotations JSONB,
			metadata    JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events (occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// eventRow maps an audit event onto the audit_events table. Annotations
// travel as a JSON blob.
type eventRow struct {
	ID          string           `db:"id"`
	Type        models.EventType `db:"event_type"`
	ActorID     string           `db:"actor_id"`
	Email       string           `db:"email"`
	SessionID   string           `db:"session_id"`
	IP          string           `db:"ip"`
	UserAgent   string           `db:"user_agent"`
	Resource    string           `db:"resource"`
	OccurredAt  time.Time        `db:"occurred_at"`
	Risk        models.RiskLevel `db:"risk"`
	Annotations []byte           `db:"annotations"`
	Metadata    models.JSONB     `db:"metadata"`
}

func toRow(evt *models.AuditEvent) (*eventRow, error) {
	annotations, err := json.Marshal(evt.Annotations)
	if err != nil {
		return nil, fmt.Errorf("marshaling annotations: %w", err)
	}
	return &eventRow{
		ID:          evt.ID,
		Type:        evt.Type,
		ActorID:     evt.ActorID,
		Email:       evt.Email,
		SessionID:   evt.SessionID,
		IP:          evt.IP,
		UserAgent:   evt.UserAgent,
		Resource:    evt.Resource,
		OccurredAt:  evt.Timestamp,
		Risk:        evt.Risk,
		Annotations: annotations,
		Metadata:    evt.Metadata,
	}, nil
}

func fromRow(row *eventRow) (*models.AuditEvent, error) {
	evt := &models.AuditEvent{
		ID:        row.ID,
		Type:      row.Type,
		ActorID:   row.ActorID,
		Email:     row.Email,
		SessionID: row.SessionID,
		IP:        row.IP,
		UserAgent: row.UserAgent,
		Resource:  row.Resource,
		Timestamp: row.OccurredAt,
		Risk:      row.Risk,
		Metadata:  row.Metadata,
	}
	if len(row.Annotations) > 0 {
		if err := json.Unmarshal(row.Annotations, &evt.Annotations); err != nil {
			return nil, fmt.Errorf("unmarshaling annotations: %w", err)
		}
	}
	return evt, nil
}

// SaveEvents writes a batch of audit events. Replayed IDs are ignored
// so restart recovery can resend the tail safely.
func (s *Store) SaveEvents(ctx context.Context, events []*models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, actor_id, email, session_id, ip, user_agent,
			resource, occurred_at, risk, annotations, metadata
		) VALUES (
			:id, :event_type, :actor_id, :email, :session_id, :ip, :user_agent,
			:resource, :occurred_at, :risk, :annotations, :metadata
		)
		ON CONFLICT (id) DO NOTHING
	`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	for _, evt := range events {
		row, err := toRow(evt)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("inserting audit event %s: %w", evt.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRecent returns the newest events in chronological order, oldest
// first, ready to seed the in-memory log.
func (s *Store) LoadRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	query := `SELECT * FROM audit_events ORDER BY occurred_at DESC, id DESC LIMIT $1`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	events := make([]*models.AuditEvent, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		evt, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// DeleteEventsBefore removes persisted events older than the cutoff and
// returns the number deleted. The retention job calls this alongside
// the in-memory trim.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountEvents reports how many events are persisted.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_events`)
	return count, err
}
