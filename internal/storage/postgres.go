package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/judgehub/internal/models"
)

// PostgreSQL error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Users ---

// CreateUser inserts a new user
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by case-insensitive username
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, password_hash, role, created_at FROM users WHERE LOWER(username) = LOWER($1)`, username)
}

func (r *PostgresRepository) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	var u models.User
	var role string

	err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = models.Role(role)
	return &u, nil
}

// ListUsers returns all users ordered by username
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, password_hash, role, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, &u)
	}

	return users, rows.Err()
}

// --- Competitions ---

// CreateCompetition inserts a competition together with any criteria and participants it carries
func (r *PostgresRepository) CreateCompetition(ctx context.Context, c *models.Competition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO competitions (id, name, description, starts_at, ends_at, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, query,
		c.ID,
		c.Name,
		nullString(c.Description),
		nullTime(c.StartsAt),
		nullTime(c.EndsAt),
		string(c.Status),
		nullString(c.CreatedBy),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create competition: %w", err)
	}

	if err := insertCriteria(ctx, tx, c.ID, c.Criteria); err != nil {
		return err
	}

	for _, p := range c.Participants {
		_, err := tx.Exec(ctx,
			`INSERT INTO participants (competition_id, id, name, position) VALUES ($1, $2, $3, $4)`,
			c.ID, p.ID, p.Name, p.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to create participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit competition: %w", err)
	}

	return nil
}

const competitionColumns = `id, name, description, starts_at, ends_at, status, created_by, created_at, updated_at`

// GetCompetition retrieves a competition with criteria, participants and judges
func (r *PostgresRepository) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE id = $1`, id)

	c, err := scanCompetition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}

	if err := r.loadChildren(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// ListCompetitions returns competitions matching filters, newest first
func (r *PostgresRepository) ListCompetitions(ctx context.Context, filters models.CompetitionFilters) ([]*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}

	var competitions []*models.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan competition: %w", err)
		}
		competitions = append(competitions, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}

	for _, c := range competitions {
		if err := r.loadChildren(ctx, c); err != nil {
			return nil, err
		}
	}

	return competitions, nil
}

// UpdateCompetitionStatus sets the lifecycle status
func (r *PostgresRepository) UpdateCompetitionStatus(ctx context.Context, id string, status models.CompetitionStatus) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE competitions SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update competition status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ReplaceCriteria locks the competition row so no score can be written
// concurrently, then swaps the criteria list if no scores exist.
func (r *PostgresRepository) ReplaceCriteria(ctx context.Context, competitionID string, criteria []models.Criterion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockCompetition(ctx, tx, competitionID, "FOR UPDATE"); err != nil {
		return err
	}

	var hasScores bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scores WHERE competition_id = $1)`, competitionID).Scan(&hasScores); err != nil {
		return fmt.Errorf("failed to check scores: %w", err)
	}
	if hasScores {
		return ErrScoresExist
	}

	if _, err := tx.Exec(ctx, `DELETE FROM criteria WHERE competition_id = $1`, competitionID); err != nil {
		return fmt.Errorf("failed to delete criteria: %w", err)
	}

	if err := insertCriteria(ctx, tx, competitionID, criteria); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE competitions SET updated_at = NOW() WHERE id = $1`, competitionID); err != nil {
		return fmt.Errorf("failed to touch competition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit criteria: %w", err)
	}

	return nil
}

// --- Participants and judges ---

// AddParticipant appends a participant after the current last position
func (r *PostgresRepository) AddParticipant(ctx context.Context, competitionID string, p *models.Participant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockCompetition(ctx, tx, competitionID, "FOR UPDATE"); err != nil {
		return err
	}

	query := `
		INSERT INTO participants (competition_id, id, name, position)
		SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0)
		FROM participants
		WHERE competition_id = $1
		RETURNING position
	`

	if err := tx.QueryRow(ctx, query, competitionID, p.ID, p.Name).Scan(&p.Position); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit participant: %w", err)
	}

	return nil
}

// RemoveParticipant deletes a participant that has no scores
func (r *PostgresRepository) RemoveParticipant(ctx context.Context, competitionID, participantID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockCompetition(ctx, tx, competitionID, "FOR UPDATE"); err != nil {
		return err
	}

	var hasScores bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scores WHERE competition_id = $1 AND participant_id = $2)`,
		competitionID, participantID,
	).Scan(&hasScores)
	if err != nil {
		return fmt.Errorf("failed to check scores: %w", err)
	}
	if hasScores {
		return ErrScoresExist
	}

	result, err := tx.Exec(ctx, `DELETE FROM participants WHERE competition_id = $1 AND id = $2`, competitionID, participantID)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// AddJudge records userID on the competition's judges list
func (r *PostgresRepository) AddJudge(ctx context.Context, competitionID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO competition_judges (competition_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		competitionID, userID,
	)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to add judge: %w", err)
	}
	return nil
}

// --- Scores ---

// CreateScore writes the score row and its criterion rows in one transaction.
// The competition row is share-locked so criteria cannot be replaced mid-write.
func (r *PostgresRepository) CreateScore(ctx context.Context, e *models.ScoreEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockCompetition(ctx, tx, e.CompetitionID, "FOR SHARE"); err != nil {
		return err
	}

	criterionRows, err := tx.Query(ctx, `SELECT id FROM criteria WHERE competition_id = $1`, e.CompetitionID)
	if err != nil {
		return fmt.Errorf("failed to load criteria: %w", err)
	}
	criterionIDs, err := pgx.CollectRows(criterionRows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan criteria: %w", err)
	}
	if !coversCriteria(criterionIDs, e.Scores) {
		return ErrStaleCriteria
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO scores (id, competition_id, participant_id, judge_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.CompetitionID, e.ParticipantID, e.JudgeID, e.CreatedAt,
	)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return ErrDuplicateScore
		}
		if isPgError(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create score: %w", err)
	}

	rows := make([][]interface{}, 0, len(e.Scores))
	for _, s := range e.Scores {
		var comment interface{}
		if s.Comment != "" {
			comment = s.Comment
		}
		rows = append(rows, []interface{}{e.ID, s.CriterionID, s.Score, comment})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"score_entries"},
		[]string{"score_id", "criterion_id", "score", "comment"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to create score entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit score: %w", err)
	}

	return nil
}

const scoreQuery = `
	SELECT s.id, s.competition_id, s.participant_id, s.judge_id, s.created_at,
	       e.criterion_id, e.score, e.comment
	FROM scores s
	JOIN score_entries e ON e.score_id = s.id
`

// GetScore returns the entry for one (competition, participant, judge) triple
func (r *PostgresRepository) GetScore(ctx context.Context, competitionID, participantID, judgeID string) (*models.ScoreEntry, error) {
	entries, err := r.queryScores(ctx,
		scoreQuery+` WHERE s.competition_id = $1 AND s.participant_id = $2 AND s.judge_id = $3 ORDER BY e.criterion_id`,
		competitionID, participantID, judgeID,
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// ListScores returns every entry of a competition in submission order
func (r *PostgresRepository) ListScores(ctx context.Context, competitionID string) ([]*models.ScoreEntry, error) {
	return r.queryScores(ctx,
		scoreQuery+` WHERE s.competition_id = $1 ORDER BY s.created_at, s.id, e.criterion_id`,
		competitionID,
	)
}

// ListParticipantScores returns every entry for one participant
func (r *PostgresRepository) ListParticipantScores(ctx context.Context, competitionID, participantID string) ([]*models.ScoreEntry, error) {
	return r.queryScores(ctx,
		scoreQuery+` WHERE s.competition_id = $1 AND s.participant_id = $2 ORDER BY s.created_at, s.id, e.criterion_id`,
		competitionID, participantID,
	)
}

// queryScores folds joined score/entry rows back into ScoreEntry values.
// Rows must be ordered so that each score's entries are contiguous.
func (r *PostgresRepository) queryScores(ctx context.Context, query string, args ...interface{}) ([]*models.ScoreEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var entries []*models.ScoreEntry
	var current *models.ScoreEntry

	for rows.Next() {
		var e models.ScoreEntry
		var s models.CriterionScore
		var comment sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.CompetitionID,
			&e.ParticipantID,
			&e.JudgeID,
			&e.CreatedAt,
			&s.CriterionID,
			&s.Score,
			&comment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		s.Comment = comment.String

		if current == nil || current.ID != e.ID {
			current = &e
			entries = append(entries, current)
		}
		current.Scores = append(current.Scores, s)
	}

	return entries, rows.Err()
}

// Helper functions

func lockCompetition(ctx context.Context, tx pgx.Tx, id, mode string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id FROM competitions WHERE id = $1 `+mode, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock competition: %w", err)
	}
	return nil
}

func insertCriteria(ctx context.Context, tx pgx.Tx, competitionID string, criteria []models.Criterion) error {
	if len(criteria) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, c := range criteria {
		batch.Queue(
			`INSERT INTO criteria (competition_id, id, name, weight, position) VALUES ($1, $2, $3, $4, $5)`,
			competitionID, c.ID, c.Name, c.Weight, i,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert criteria: %w", err)
	}
	return nil
}

func (r *PostgresRepository) loadChildren(ctx context.Context, c *models.Competition) error {
	criteriaRows, err := r.pool.Query(ctx,
		`SELECT id, name, weight FROM criteria WHERE competition_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load criteria: %w", err)
	}
	c.Criteria, err = pgx.CollectRows(criteriaRows, func(row pgx.CollectableRow) (models.Criterion, error) {
		var cr models.Criterion
		err := row.Scan(&cr.ID, &cr.Name, &cr.Weight)
		return cr, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan criteria: %w", err)
	}

	participantRows, err := r.pool.Query(ctx,
		`SELECT id, name, position FROM participants WHERE competition_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	c.Participants, err = pgx.CollectRows(participantRows, func(row pgx.CollectableRow) (models.Participant, error) {
		var p models.Participant
		err := row.Scan(&p.ID, &p.Name, &p.Position)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan participants: %w", err)
	}

	judgeRows, err := r.pool.Query(ctx,
		`SELECT user_id FROM competition_judges WHERE competition_id = $1 ORDER BY added_at`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load judges: %w", err)
	}
	c.Judges, err = pgx.CollectRows(judgeRows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan judges: %w", err)
	}

	return nil
}

func scanCompetition(row pgx.Row) (*models.Competition, error) {
	var c models.Competition
	var status string
	var description, createdBy sql.NullString
	var startsAt, endsAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.Name,
		&description,
		&startsAt,
		&endsAt,
		&status,
		&createdBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.CompetitionStatus(status)
	c.Description = description.String
	c.CreatedBy = createdBy.String

	if startsAt.Valid {
		c.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}

	return &c, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
