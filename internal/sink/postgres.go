package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/metrics"
)

// PostgresSink persists run results to PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// Migrate applies the schema migrations for the Postgres sink.
func Migrate(dsn, migrationsDir string) error {
	m, err := migrate.New("file://"+migrationsDir, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// NewPostgresSink connects to PostgreSQL and verifies the connection.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSink{pool: pool}, nil
}

// WriteResult inserts the run, its timelines, and its link map in one
// transaction.
func (s *PostgresSink) WriteResult(ctx context.Context, res *cohort.Result) error {
	start := time.Now()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statsJSON, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, entities_requested, entities_generated, entities_failed, stats, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		res.RunID, res.Stats.EntitiesRequested, res.Stats.EntitiesGenerated, res.Stats.EntitiesFailed, statsJSON,
	)
	if err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, entityID := range res.Entities {
		tl := res.Timelines[entityID]
		vertical := ""
		var attrs []byte
		if st, ok := res.States[entityID]; ok {
			vertical = string(st.Vertical)
			if attrs, err = json.Marshal(st.Attrs); err != nil {
				return fmt.Errorf("marshal attributes for %s: %w", entityID, err)
			}
		}
		batch.Queue(
			`INSERT INTO entities (id, run_id, vertical, anchor, attributes)
			 VALUES ($1, $2, $3, $4, $5)`,
			entityID, res.RunID, vertical, tl.Anchor, attrs,
		)
		for _, ev := range tl.Events() {
			params, err := json.Marshal(ev.Params)
			if err != nil {
				return fmt.Errorf("marshal params for %s: %w", ev.InstanceID, err)
			}
			batch.Queue(
				`INSERT INTO timeline_events
				 (run_id, entity_id, instance_id, definition_id, event_type, scheduled_at, status, occurrence, params, parent_instance_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				res.RunID, entityID, ev.InstanceID, ev.DefinitionID, ev.Type, ev.Time, string(ev.Status), ev.Occurrence, params, nullable(ev.ParentInstanceID),
			)
		}
	}

	for _, le := range res.OrderedLinks() {
		locals, err := json.Marshal(le.Locals)
		if err != nil {
			return fmt.Errorf("marshal locals for %s: %w", le.CanonicalID, err)
		}
		batch.Queue(
			`INSERT INTO linked_entities (canonical_id, run_id, locals, source_entity_id, source_event_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			le.CanonicalID, res.RunID, locals, le.SourceEntityID, le.SourceEventID,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			metrics.SinkErrors.Inc()
			return fmt.Errorf("batch insert: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("commit: %w", err)
	}

	metrics.SinkWriteDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
