package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// dateLayout is how observation dates are stored; lexical order equals
// chronological order, so MAX/ORDER BY work directly on the column.
const dateLayout = "2006-01-02"

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database and runs migrations.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// obsRow is the scan target; rank/score/traffic are nullable columns.
type obsRow struct {
	Keyword   string          `db:"keyword"`
	Country   string          `db:"country"`
	SubjectID string          `db:"subject_id"`
	Date      string          `db:"date"`
	Rank      sql.NullInt64   `db:"rank"`
	Score     sql.NullFloat64 `db:"score"`
	Traffic   sql.NullFloat64 `db:"traffic"`
}

func (r obsRow) observation() (*Observation, error) {
	date, err := time.ParseInLocation(dateLayout, r.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse stored date %q: %w", r.Date, err)
	}
	obs := &Observation{
		Keyword:   r.Keyword,
		Country:   r.Country,
		SubjectID: r.SubjectID,
		Date:      date,
	}
	if r.Rank.Valid {
		obs.Rank = int(r.Rank.Int64)
		obs.HasRank = true
	}
	if r.Score.Valid {
		v := r.Score.Float64
		obs.Score = &v
	}
	if r.Traffic.Valid {
		v := r.Traffic.Float64
		obs.Traffic = &v
	}
	return obs, nil
}

func (s *SQLiteStore) Put(ctx context.Context, obs Observation) error {
	var rank sql.NullInt64
	if obs.HasRank {
		rank = sql.NullInt64{Int64: int64(obs.Rank), Valid: true}
	}
	var score, traffic sql.NullFloat64
	if obs.Score != nil {
		score = sql.NullFloat64{Float64: *obs.Score, Valid: true}
	}
	if obs.Traffic != nil {
		traffic = sql.NullFloat64{Float64: *obs.Traffic, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (keyword, country, subject_id, date, rank, score, traffic)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(keyword, country, subject_id, date) DO UPDATE SET
			rank = excluded.rank,
			score = excluded.score,
			traffic = excluded.traffic
	`, obs.Keyword, obs.Country, obs.SubjectID, Day(obs.Date).Format(dateLayout),
		rank, score, traffic)
	if err != nil {
		return fmt.Errorf("upsert observation %s/%s/%s: %w", obs.Keyword, obs.Country, obs.SubjectID, err)
	}
	return nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*Observation, error) {
	var row obsRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query observation: %w", err)
	}
	return row.observation()
}

func (s *SQLiteStore) LatestAtOrBefore(ctx context.Context, key Key, date time.Time) (*Observation, error) {
	return s.queryOne(ctx, `
		SELECT * FROM observations
		WHERE keyword = ? AND country = ? AND subject_id = ? AND date <= ?
		ORDER BY date DESC LIMIT 1
	`, key.Keyword, key.Country, key.SubjectID, Day(date).Format(dateLayout))
}

func (s *SQLiteStore) PreviousBefore(ctx context.Context, key Key, date time.Time) (*Observation, error) {
	current, err := s.LatestAtOrBefore(ctx, key, date)
	if err != nil || current == nil {
		return nil, err
	}
	return s.queryOne(ctx, `
		SELECT * FROM observations
		WHERE keyword = ? AND country = ? AND subject_id = ? AND date < ?
		ORDER BY date DESC LIMIT 1
	`, key.Keyword, key.Country, key.SubjectID, current.Date.Format(dateLayout))
}

func (s *SQLiteStore) MostRecentEver(ctx context.Context, key Key) (*Observation, error) {
	return s.queryOne(ctx, `
		SELECT * FROM observations
		WHERE keyword = ? AND country = ? AND subject_id = ?
		ORDER BY date DESC LIMIT 1
	`, key.Keyword, key.Country, key.SubjectID)
}

func (s *SQLiteStore) Countries(ctx context.Context) ([]string, error) {
	var countries []string
	err := s.db.SelectContext(ctx, &countries,
		"SELECT DISTINCT country FROM observations ORDER BY country")
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return countries, nil
}

func (s *SQLiteStore) RowKeys(ctx context.Context, country string, subjectIDs []string) ([]EntityKey, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT DISTINCT keyword, country FROM observations
		WHERE country = ? AND subject_id IN (?)
		ORDER BY keyword, country
	`, country, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("build row keys query: %w", err)
	}

	var rows []EntityKey
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list row keys: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) SubjectsForCountry(ctx context.Context, country string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT DISTINCT subject_id FROM observations WHERE country = ? ORDER BY subject_id",
		country)
	if err != nil {
		return nil, fmt.Errorf("list subjects for %s: %w", country, err)
	}
	return ids, nil
}

func (s *SQLiteStore) UpsertSubject(ctx context.Context, subj Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, platform) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, platform = excluded.platform
	`, subj.ID, subj.Name, subj.Platform)
	if err != nil {
		return fmt.Errorf("upsert subject %s: %w", subj.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSubjects(ctx context.Context) ([]Subject, error) {
	var subjects []Subject
	err := s.db.SelectContext(ctx, &subjects, "SELECT * FROM subjects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM observations WHERE date < ?", Day(cutoff).Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("delete before %s: %w", Day(cutoff).Format(dateLayout), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
