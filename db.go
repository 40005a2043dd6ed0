package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("record not found")

// RowError reports one rejected row from a bulk insert. Index refers to
// the position in the input slice.
type RowError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Store is the narrow persistence interface the pipeline calls. Every
// operation is scoped by owner identity; no call ever touches another
// owner's rows.
type Store interface {
	SelectRecentFeedback(ctx context.Context, ownerID string, limit int) ([]Feedback, error)
	InsertFeedback(ctx context.Context, records []Feedback) ([]Feedback, []RowError)
	UpdateFeedbackAnalysis(ctx context.Context, id, ownerID string, analysis FeedbackAnalysis) error
	UpsertInsights(ctx context.Context, kind string, rows []Insight) (int, error)
	ListInsights(ctx context.Context, kind, ownerID string, limit int) ([]Insight, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func OpenStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		source          TEXT NOT NULL,
		raw_text        TEXT NOT NULL,
		rating          INTEGER,
		author_name     TEXT DEFAULT '',
		sentiment       TEXT DEFAULT '',
		sentiment_score REAL,
		processed_at    DATETIME,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback(user_id, created_at);

	CREATE TABLE IF NOT EXISTS pain_points (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		title            TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		description      TEXT DEFAULT '',
		category         TEXT DEFAULT '',
		priority         TEXT DEFAULT '',
		mention_count    INTEGER NOT NULL DEFAULT 1,
		recent_mentions  INTEGER NOT NULL DEFAULT 1,
		sentiment_score  REAL,
		trend_direction  TEXT DEFAULT 'up',
		trend_percentage REAL DEFAULT 0,
		first_seen_at    DATETIME NOT NULL,
		last_seen_at     DATETIME NOT NULL,
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pain_points_dedup
		ON pain_points(user_id, category, normalized_title);

	CREATE TABLE IF NOT EXISTS feature_requests (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		title            TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		description      TEXT DEFAULT '',
		category         TEXT DEFAULT '',
		priority         TEXT DEFAULT '',
		mention_count    INTEGER NOT NULL DEFAULT 1,
		recent_mentions  INTEGER NOT NULL DEFAULT 1,
		interest_score   REAL,
		status           TEXT DEFAULT 'under_review',
		first_seen_at    DATETIME NOT NULL,
		last_seen_at     DATETIME NOT NULL,
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_feature_requests_dedup
		ON feature_requests(user_id, category, normalized_title);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertFeedback bulk-inserts feedback records, assigning IDs and creation
// timestamps. Partial failure yields the subset actually persisted plus a
// per-row error list; it never aborts the whole batch.
func (s *SQLiteStore) InsertFeedback(ctx context.Context, records []Feedback) ([]Feedback, []RowError) {
	var inserted []Feedback
	var rowErrs []RowError

	for i, fb := range records {
		fb.ID = uuid.NewString()
		fb.CreatedAt = time.Now().UTC()

		var rating any
		if fb.Rating != 0 {
			rating = fb.Rating
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO feedback (id, user_id, source, raw_text, rating, author_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fb.ID, fb.OwnerID, fb.Source, fb.RawText, rating, fb.AuthorName, fb.CreatedAt,
		)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Message: err.Error()})
			continue
		}
		inserted = append(inserted, fb)
	}
	return inserted, rowErrs
}

// SelectRecentFeedback returns up to limit records for the owner,
// newest-first.
func (s *SQLiteStore) SelectRecentFeedback(ctx context.Context, ownerID string, limit int) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source, raw_text, rating, author_name, sentiment, sentiment_score, processed_at, created_at
		 FROM feedback WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var rating sql.NullInt64
		var score sql.NullFloat64
		var processedAt sql.NullTime
		err := rows.Scan(
			&fb.ID, &fb.OwnerID, &fb.Source, &fb.RawText,
			&rating, &fb.AuthorName, &fb.Sentiment, &score, &processedAt, &fb.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if rating.Valid {
			fb.Rating = int(rating.Int64)
		}
		if score.Valid {
			fb.SentimentScore = score.Float64
		}
		if processedAt.Valid {
			fb.ProcessedAt = processedAt.Time
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// UpdateFeedbackAnalysis writes the sentiment fields of an analysis back
// onto the owning record. Scoped by id AND owner: a record belonging to a
// different owner is ErrNotFound, never updated.
func (s *SQLiteStore) UpdateFeedbackAnalysis(ctx context.Context, id, ownerID string, analysis FeedbackAnalysis) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET sentiment = ?, sentiment_score = ?, processed_at = ?
		 WHERE id = ? AND user_id = ?`,
		analysis.Sentiment, analysis.SentimentScore, analysis.ProcessedAt, id, ownerID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertInsights persists one synthesis batch. Rows are keyed by
// (owner, category, normalized title): an existing row gets its cumulative
// mention count incremented and, for pain points, its trend fields
// recomputed from the latest per-run estimate; a new row is inserted
// as-is. Individual row failures are logged and skipped so the rest of the
// batch still lands. Returns the number of rows accepted.
func (s *SQLiteStore) UpsertInsights(ctx context.Context, kind string, rows []Insight) (int, error) {
	accepted := 0
	for _, in := range rows {
		if err := in.Validate(); err != nil {
			log.Printf("store upsert skipped invalid %s title=%q err=%v", kind, in.Title, err)
			continue
		}
		var err error
		switch kind {
		case KindPainPoint:
			err = s.upsertPainPoint(ctx, in)
		case KindFeatureRequest:
			err = s.upsertFeatureRequest(ctx, in)
		default:
			return accepted, fmt.Errorf("unknown insight kind %q", kind)
		}
		if err != nil {
			log.Printf("store upsert failed %s title=%q err=%v", kind, in.Title, err)
			continue
		}
		accepted++
	}
	return accepted, nil
}

func (s *SQLiteStore) upsertPainPoint(ctx context.Context, in Insight) error {
	key := normalizeTitle(in.Title)

	var existingID string
	var prevRecent int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, recent_mentions FROM pain_points
		 WHERE user_id = ? AND category = ? AND normalized_title = ?`,
		in.OwnerID, in.Category, key,
	).Scan(&existingID, &prevRecent)

	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO pain_points
			 (id, user_id, title, normalized_title, description, category, priority,
			  mention_count, recent_mentions, sentiment_score, trend_direction, trend_percentage,
			  first_seen_at, last_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'up', 0, ?, ?)`,
			uuid.NewString(), in.OwnerID, in.Title, key, in.Description, in.Category, in.Priority,
			in.MentionCount, in.MentionCount, in.Score, in.FirstSeenAt, in.LastSeenAt,
		)
		return err
	}
	if err != nil {
		return err
	}

	trend := "up"
	if in.MentionCount < prevRecent {
		trend = "down"
	}
	trendPct := 0.0
	if prevRecent > 0 {
		trendPct = float64(in.MentionCount-prevRecent) / float64(prevRecent) * 100
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE pain_points
		 SET mention_count = mention_count + ?, recent_mentions = ?,
		     description = ?, priority = ?, sentiment_score = ?,
		     trend_direction = ?, trend_percentage = ?, last_seen_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.MentionCount, in.MentionCount,
		in.Description, in.Priority, in.Score,
		trend, trendPct, in.LastSeenAt,
		existingID,
	)
	return err
}

func (s *SQLiteStore) upsertFeatureRequest(ctx context.Context, in Insight) error {
	key := normalizeTitle(in.Title)

	var existingID string
	var prevRecent int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, recent_mentions FROM feature_requests
		 WHERE user_id = ? AND category = ? AND normalized_title = ?`,
		in.OwnerID, in.Category, key,
	).Scan(&existingID, &prevRecent)

	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO feature_requests
			 (id, user_id, title, normalized_title, description, category, priority,
			  mention_count, recent_mentions, interest_score, first_seen_at, last_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), in.OwnerID, in.Title, key, in.Description, in.Category, in.Priority,
			in.MentionCount, in.MentionCount, in.Score, in.FirstSeenAt, in.LastSeenAt,
		)
		return err
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE feature_requests
		 SET mention_count = mention_count + ?, recent_mentions = ?,
		     description = ?, priority = ?, interest_score = ?,
		     last_seen_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.MentionCount, in.MentionCount,
		in.Description, in.Priority, in.Score,
		in.LastSeenAt,
		existingID,
	)
	return err
}

// ListInsights returns the owner's insights of one kind, highest mention
// volume first.
func (s *SQLiteStore) ListInsights(ctx context.Context, kind, ownerID string, limit int) ([]Insight, error) {
	switch kind {
	case KindPainPoint:
		return s.listPainPoints(ctx, ownerID, limit)
	case KindFeatureRequest:
		return s.listFeatureRequests(ctx, ownerID, limit)
	default:
		return nil, fmt.Errorf("unknown insight kind %q", kind)
	}
}

func (s *SQLiteStore) listPainPoints(ctx context.Context, ownerID string, limit int) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, category, priority,
		        mention_count, recent_mentions, sentiment_score, trend_direction, trend_percentage,
		        first_seen_at, last_seen_at
		 FROM pain_points WHERE user_id = ?
		 ORDER BY mention_count DESC, last_seen_at DESC
		 LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		in := Insight{Kind: KindPainPoint}
		var score sql.NullFloat64
		if err := rows.Scan(
			&in.ID, &in.OwnerID, &in.Title, &in.Description, &in.Category, &in.Priority,
			&in.MentionCount, &in.RecentMentions, &score, &in.TrendDirection, &in.TrendPercent,
			&in.FirstSeenAt, &in.LastSeenAt,
		); err != nil {
			return nil, err
		}
		if score.Valid {
			in.Score = score.Float64
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) listFeatureRequests(ctx context.Context, ownerID string, limit int) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, category, priority,
		        mention_count, recent_mentions, interest_score, status,
		        first_seen_at, last_seen_at
		 FROM feature_requests WHERE user_id = ?
		 ORDER BY mention_count DESC, last_seen_at DESC
		 LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		in := Insight{Kind: KindFeatureRequest}
		var score sql.NullFloat64
		if err := rows.Scan(
			&in.ID, &in.OwnerID, &in.Title, &in.Description, &in.Category, &in.Priority,
			&in.MentionCount, &in.RecentMentions, &score, &in.Status,
			&in.FirstSeenAt, &in.LastSeenAt,
		); err != nil {
			return nil, err
		}
		if score.Valid {
			in.Score = score.Float64
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
