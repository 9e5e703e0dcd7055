package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables used by the Postgres repositories.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("repository: migrate failed: %w", err)
	}
	return nil
}

var _ domain.ReplicaRepository = (*PostgresReplicaRepository)(nil)

// PostgresReplicaRepository stores one profile row per user plus one row per
// day log. The entitlement columns are authoritative: the JSON document never
// carries entitlement, and client commits never touch those columns.
type PostgresReplicaRepository struct {
	db *sqlx.DB
}

func NewPostgresReplicaRepository(db *sqlx.DB) *PostgresReplicaRepository {
	return &PostgresReplicaRepository{db: db}
}

type profileRow struct {
	Document           []byte       `db:"document"`
	IsPremium          bool         `db:"is_premium"`
	PremiumExpiry      sql.NullTime `db:"premium_expiry"`
	HasEverBeenPremium bool         `db:"has_ever_been_premium"`
	LastUpdated        int64        `db:"last_updated"`
}

// toProfile decodes the document and overlays the authoritative columns.
func (r profileRow) toProfile(userID string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := json.Unmarshal(r.Document, &profile); err != nil {
		return nil, fmt.Errorf("repository: corrupted profile document for %s: %w", userID, err)
	}
	profile.UserID = userID
	profile.LastUpdated = r.LastUpdated
	profile.HasEverBeenPremium = r.HasEverBeenPremium
	profile.Entitlement = domain.Entitlement{IsPremium: r.IsPremium}
	if r.PremiumExpiry.Valid {
		expiry := r.PremiumExpiry.Time.UTC()
		profile.Entitlement.Expiry = &expiry
	}
	return &profile, nil
}

type dayLogRow struct {
	Date       string          `db:"log_date"`
	Indices    pq.Int64Array   `db:"completed_indices"`
	Names      pq.StringArray  `db:"completed_habit_names"`
	Energy     string          `db:"energy"`
	Note       string          `db:"note"`
	Intention  string          `db:"intention"`
	DailyScore sql.NullFloat64 `db:"daily_score"`
	UpdatedAt  int64           `db:"updated_at"`
}

func (r dayLogRow) toDomain() *domain.DailyLog {
	l := domain.NewDailyLog(r.Date)
	for _, i := range r.Indices {
		l.CompletedIndices = append(l.CompletedIndices, int(i))
	}
	l.CompletedHabitNames = append(l.CompletedHabitNames, r.Names...)
	l.Energy = domain.EnergyTier(r.Energy)
	l.Note = r.Note
	l.Intention = r.Intention
	if r.DailyScore.Valid {
		score := r.DailyScore.Float64
		l.DailyScore = &score
	}
	l.UpdatedAt = r.UpdatedAt
	return l
}

func (r *PostgresReplicaRepository) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		row  profileRow
		rows []dayLogRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.db.GetContext(gctx, &row, `
			SELECT document, is_premium, premium_expiry, has_ever_been_premium, last_updated
			FROM replica_profiles
			WHERE user_id = $1`, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrReplicaNotFound
		}
		return err
	})
	g.Go(func() error {
		return r.db.SelectContext(gctx, &rows, `
			SELECT log_date, completed_indices, completed_habit_names, energy, note, intention, daily_score, updated_at
			FROM replica_day_logs
			WHERE user_id = $1
			ORDER BY log_date`, userID)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrReplicaNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repository: fetch replica failed: %w", err)
	}

	profile, err := row.toProfile(userID)
	if err != nil {
		return nil, err
	}

	snap := &domain.RemoteSnapshot{Profile: *profile, Logs: make([]*domain.DailyLog, 0, len(rows))}
	for _, l := range rows {
		snap.Logs = append(snap.Logs, l.toDomain())
	}
	return snap, nil
}

// Commit upserts the profile document and the batch's day logs in a single
// transaction.
func (r *PostgresReplicaRepository) Commit(ctx context.Context, batch *domain.ReplicaBatch) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc, err := profileDocument(batch.Profile)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin commit failed: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO replica_profiles (user_id, document, last_updated, last_batch_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			document = EXCLUDED.document,
			last_updated = EXCLUDED.last_updated,
			last_batch_id = EXCLUDED.last_batch_id,
			updated_at = NOW()`,
		batch.UserID, doc, batch.Profile.LastUpdated, batch.ID)
	if err != nil {
		return fmt.Errorf("repository: upsert profile failed: %w", err)
	}

	if len(batch.Logs) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO replica_day_logs (
				user_id, log_date, completed_indices, completed_habit_names,
				energy, note, intention, daily_score, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (user_id, log_date) DO UPDATE SET
				completed_indices = EXCLUDED.completed_indices,
				completed_habit_names = EXCLUDED.completed_habit_names,
				energy = EXCLUDED.energy,
				note = EXCLUDED.note,
				intention = EXCLUDED.intention,
				daily_score = EXCLUDED.daily_score,
				updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("repository: prepare day log upsert failed: %w", err)
		}
		defer stmt.Close()

		for _, l := range batch.Logs {
			indices := make(pq.Int64Array, 0, len(l.CompletedIndices))
			for _, i := range l.CompletedIndices {
				indices = append(indices, int64(i))
			}
			names := pq.StringArray(l.CompletedHabitNames)
			if names == nil {
				names = pq.StringArray{}
			}
			var score sql.NullFloat64
			if l.DailyScore != nil {
				score = sql.NullFloat64{Float64: *l.DailyScore, Valid: true}
			}

			if _, err := stmt.ExecContext(ctx,
				batch.UserID, l.Date, indices, names,
				string(l.Energy), l.Note, l.Intention, score, l.UpdatedAt,
			); err != nil {
				return fmt.Errorf("repository: upsert day log %s failed: %w", l.Date, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit batch failed: %w", err)
	}
	return nil
}

// UpdateEntitlement locks the profile row for the duration of fn. Client
// commits block on the lock, and the document is only touched at
// resilience.shields, so a newer client document is never overwritten.
func (r *PostgresReplicaRepository) UpdateEntitlement(ctx context.Context, userID string, fn func(p *domain.Profile) error) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fresh, err := profileDocument(domain.NewProgress(userID).Profile)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: begin entitlement update failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO replica_profiles (user_id, document, last_updated, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING`, userID, fresh); err != nil {
		return nil, fmt.Errorf("repository: create profile failed: %w", err)
	}

	var row profileRow
	if err := tx.GetContext(ctx, &row, `
		SELECT document, is_premium, premium_expiry, has_ever_been_premium, last_updated
		FROM replica_profiles
		WHERE user_id = $1
		FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("repository: lock profile failed: %w", err)
	}

	profile, err := row.toProfile(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(profile); err != nil {
		return nil, err
	}

	var expiry sql.NullTime
	if profile.Entitlement.Expiry != nil {
		expiry = sql.NullTime{Time: *profile.Entitlement.Expiry, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE replica_profiles SET
			is_premium = $2,
			premium_expiry = $3,
			has_ever_been_premium = has_ever_been_premium OR $4,
			document = jsonb_set(document, '{resilience,shields}', to_jsonb($5::int)),
			updated_at = NOW()
		WHERE user_id = $1`,
		userID, profile.Entitlement.IsPremium, expiry, profile.HasEverBeenPremium, profile.Resilience.Shields)
	if err != nil {
		return nil, fmt.Errorf("repository: update entitlement failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: commit entitlement failed: %w", err)
	}

	profile.LastUpdated = row.LastUpdated
	profile.HasEverBeenPremium = profile.HasEverBeenPremium || row.HasEverBeenPremium
	return profile, nil
}

// profileDocument serializes a profile without its entitlement fields.
func profileDocument(p domain.Profile) ([]byte, error) {
	doc := p.Clone()
	doc.Entitlement = domain.Entitlement{}
	doc.HasEverBeenPremium = false
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to marshal profile: %w", err)
	}
	return data, nil
}
