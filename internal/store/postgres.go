package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/geo"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Postgres implements the store against Postgres with PostGIS
type Postgres struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewPostgres creates a store on an existing pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:   pool,
		tracer: otel.Tracer("visit-guard-store"),
	}
}

// Connect opens a pool and waits for the database, retrying like the API
// server does at startup.
func Connect(ctx context.Context, dbURL string, attempts int, wait time.Duration) (*pgxpool.Pool, error) {
	var (
		pool *pgxpool.Pool
		err  error
	)
	for i := 0; i < attempts; i++ {
		pool, err = pgxpool.New(ctx, dbURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

// Migrate applies embedded migrations in filename order, once each
func (s *Postgres) Migrate(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "store.migrate")
	defer span.End()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	var applied []string
	for _, name := range files {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			span.RecordError(err)
			return applied, fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}

	span.SetAttributes(attribute.Int("migrations.applied", len(applied)))
	return applied, nil
}

// Ping checks database connectivity
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// TrustScore returns the agent's stored score or ErrNotFound
func (s *Postgres) TrustScore(ctx context.Context, agentID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.trust_score")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	var score int
	err := s.pool.QueryRow(ctx,
		`SELECT trust_score FROM agents WHERE id = $1`, agentID,
	).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read trust score: %w", err)
	}
	return score, nil
}

// DeductTrust lowers the score under a row lock and appends the anomaly
// event in the same transaction.
func (s *Postgres) DeductTrust(ctx context.Context, agentID string, amount int, reason PenaltyReason) (int, int, error) {
	if amount < 0 {
		return 0, 0, ErrInvalidPenalty
	}
	ctx, span := s.tracer.Start(ctx, "store.deduct_trust")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("penalty.amount", amount),
	)

	var oldScore, newScore int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO agents (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, agentID,
		); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT trust_score FROM agents WHERE id = $1 FOR UPDATE`, agentID,
		).Scan(&oldScore); err != nil {
			return err
		}
		newScore = clampPenalty(oldScore, amount)
		if _, err := tx.Exec(ctx,
			`UPDATE agents SET trust_score = $2 WHERE id = $1`, agentID, newScore,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO location_events (id, agent_id, event_type, reason, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), agentID, string(models.LocationEventAnomaly), reason(oldScore, newScore), time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to apply penalty: %w", err)
	}
	return oldScore, newScore, nil
}

// ListTrust returns every trust record, lowest score first
func (s *Postgres) ListTrust(ctx context.Context) ([]models.AgentTrust, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, trust_score FROM agents ORDER BY trust_score ASC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trust scores: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AgentTrust, error) {
		var t models.AgentTrust
		err := row.Scan(&t.AgentID, &t.TrustScore)
		return t, err
	})
}

// AppendSample inserts one location history row
func (s *Postgres) AppendSample(ctx context.Context, sample models.LocationSample) error {
	ctx, span := s.tracer.Start(ctx, "store.append_sample")
	defer span.End()

	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO location_history (id, agent_id, position, accuracy, speed, heading, recorded_at)
		 VALUES ($1, $2, ST_GeogFromText($3), $4, $5, $6, $7)`,
		sample.ID, sample.AgentID, geo.FormatWKT(sample.Position),
		sample.AccuracyMeters, sample.Speed, sample.Heading, utc(sample.Timestamp),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append location sample: %w", err)
	}
	return nil
}

// LatestSample returns the agent's newest history row
func (s *Postgres) LatestSample(ctx context.Context, agentID string) (models.LocationSample, error) {
	ctx, span := s.tracer.Start(ctx, "store.latest_sample")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	var (
		sample models.LocationSample
		raw    string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, agent_id::text, ST_AsText(position::geometry), accuracy, speed, heading, recorded_at
		 FROM location_history
		 WHERE agent_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT 1`,
		agentID,
	).Scan(&sample.ID, &sample.AgentID, &raw, &sample.AccuracyMeters, &sample.Speed, &sample.Heading, &sample.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LocationSample{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return models.LocationSample{}, fmt.Errorf("failed to read latest sample: %w", err)
	}

	pos, ok := geo.ParsePosition(raw)
	if !ok {
		return models.LocationSample{}, fmt.Errorf("unparseable stored position %q", raw)
	}
	sample.Position = pos
	return sample, nil
}

// AppendEvent inserts one audit log row
func (s *Postgres) AppendEvent(ctx context.Context, e models.LocationEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO location_events (id, agent_id, event_type, position, reason, created_at)
		 VALUES ($1, $2, $3, ST_GeogFromText($4::text), $5, $6)`,
		e.ID, e.AgentID, string(e.EventType), wktOrNil(e.Position), e.Reason, utc(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append location event: %w", err)
	}
	return nil
}

// SetLivePosition writes the agent's current position; writes older than
// the stored timestamp are ignored, and at equal timestamps a clear wins,
// so a late sampler tick cannot undo a disable.
func (s *Postgres) SetLivePosition(ctx context.Context, agentID string, pos *models.Position, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "store.set_live_position")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.Bool("position.cleared", pos == nil),
	)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, current_position, current_position_at)
		 VALUES ($1, ST_GeogFromText($2::text), $3)
		 ON CONFLICT (id) DO UPDATE
		 SET current_position = EXCLUDED.current_position,
		     current_position_at = EXCLUDED.current_position_at
		 WHERE agents.current_position_at IS NULL
		    OR agents.current_position_at < EXCLUDED.current_position_at
		    OR (agents.current_position_at = EXCLUDED.current_position_at
		        AND (EXCLUDED.current_position IS NULL OR agents.current_position IS NOT NULL))`,
		agentID, wktOrNil(pos), utc(at),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update live position: %w", err)
	}
	return nil
}

// LivePositions returns every agent with a visible live position
func (s *Postgres) LivePositions(ctx context.Context) ([]models.LivePosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, ST_AsText(current_position::geometry), current_position_at
		 FROM agents
		 WHERE current_position IS NOT NULL
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list live positions: %w", err)
	}
	defer rows.Close()

	var out []models.LivePosition
	for rows.Next() {
		var (
			lp  models.LivePosition
			raw string
		)
		if err := rows.Scan(&lp.AgentID, &raw, &lp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan live position: %w", err)
		}
		if pos, ok := geo.ParseDisplayPosition(raw); ok {
			lp.Position = &pos
			out = append(out, lp)
		}
	}
	return out, rows.Err()
}

// CreateVisit inserts a pending visit. The partial unique index turns a
// second pending visit for the same agent into ErrPendingVisitExists.
func (s *Postgres) CreateVisit(ctx context.Context, v models.Visit) error {
	ctx, span := s.tracer.Start(ctx, "store.create_visit")
	defer span.End()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("visit.id", v.ID),
		attribute.String("agent.id", v.AgentID),
	)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO visits (id, agent_id, client_id, start_time, outcome, notes, checkin_position)
		 VALUES ($1, $2, $3, $4, $5, $6, ST_GeogFromText($7::text))`,
		v.ID, v.AgentID, v.ClientID, utc(v.StartTime), string(models.VisitOutcomePending), v.Notes, wktOrNil(v.CheckinPosition),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrPendingVisitExists
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

// LatestPendingVisit returns the agent's most recent open visit
func (s *Postgres) LatestPendingVisit(ctx context.Context, agentID string) (models.Visit, error) {
	ctx, span := s.tracer.Start(ctx, "store.latest_pending_visit")
	defer span.End()

	var (
		v       models.Visit
		outcome string
		checkin *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, agent_id::text, client_id, start_time, outcome, notes, ST_AsText(checkin_position::geometry)
		 FROM visits
		 WHERE agent_id = $1 AND outcome = 'pending'
		 ORDER BY start_time DESC
		 LIMIT 1`,
		agentID,
	).Scan(&v.ID, &v.AgentID, &v.ClientID, &v.StartTime, &outcome, &v.Notes, &checkin)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Visit{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return models.Visit{}, fmt.Errorf("failed to read pending visit: %w", err)
	}
	v.Outcome = models.VisitOutcome(outcome)
	if checkin != nil {
		if pos, ok := geo.ParsePosition(*checkin); ok {
			v.CheckinPosition = &pos
		}
	}
	return v, nil
}

// CloseVisit moves a pending visit to its terminal outcome
func (s *Postgres) CloseVisit(ctx context.Context, visitID string, c models.VisitClose) error {
	ctx, span := s.tracer.Start(ctx, "store.close_visit")
	defer span.End()
	span.SetAttributes(
		attribute.String("visit.id", visitID),
		attribute.String("visit.outcome", string(c.Outcome)),
		attribute.Bool("visit.forced", c.Forced),
	)

	tag, err := s.pool.Exec(ctx,
		`UPDATE visits
		 SET end_time = $2, duration_seconds = $3, outcome = $4, notes = $5,
		     checkout_position = ST_GeogFromText($6::text), checkout_accuracy = $7, forced = $8
		 WHERE id = $1 AND outcome = 'pending'`,
		visitID, utc(c.EndTime), c.DurationSeconds, string(c.Outcome), c.Notes,
		wktOrNil(c.CheckoutPosition), c.CheckoutAccuracyMeters, c.Forced,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to close visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TrackingEnabled reads the tracking flag; agents without a row are off
func (s *Postgres) TrackingEnabled(ctx context.Context, agentID string) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx,
		`SELECT enabled FROM tracking_preferences WHERE agent_id = $1`, agentID,
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read tracking preference: %w", err)
	}
	return enabled, nil
}

// SetTrackingEnabled upserts the tracking flag
func (s *Postgres) SetTrackingEnabled(ctx context.Context, agentID string, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracking_preferences (agent_id, enabled, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (agent_id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		agentID, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to write tracking preference: %w", err)
	}
	return nil
}

// TrackingAgents lists agents with tracking switched on
func (s *Postgres) TrackingAgents(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id::text FROM tracking_preferences WHERE enabled ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked agents: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func wktOrNil(p *models.Position) *string {
	if p == nil {
		return nil
	}
	s := geo.FormatWKT(*p)
	return &s
}
