package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"ga_friendliness/internal/domain"
)

const (
	metaRunID           = "run_id"
	metaSourceVersion   = "source_version"
	metaOntologyVersion = "ontology_version"
	metaScoringVersion  = "scoring_version"
	metaLastBuild       = "last_build"
	metaLastProcessed   = "last_processed:"
)

func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func valTime(p *time.Time) any {
	if p == nil || p.IsZero() {
		return nil
	}
	return fmtTime(*p)
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func ptrF64(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func valJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Repo is the enrichment store. The authoritative airport database is
// reachable under the aip qualifier and is only ever read.
type Repo struct {
	db      *sqlx.DB
	dialect dialect
	aip     string // table qualifier, e.g. "aip." or "`euro_aip`."
	schema  string // authoritative schema name on MySQL
}

func (r *Repo) DB() *sqlx.DB { return r.db }

func (r *Repo) Close() error { return r.db.Close() }

type statsRow struct {
	ICAO             string          `db:"icao"`
	ReviewCount      int             `db:"review_count"`
	TagCount         int             `db:"tag_count"`
	FailedReviews    int             `db:"failed_reviews"`
	RatingAvg        sql.NullFloat64 `db:"rating_avg"`
	RatingCount      int             `db:"rating_count"`
	LastReview       sql.NullString  `db:"last_review_utc"`
	Facts            string          `db:"facts_json"`
	ReviewFeatures   string          `db:"review_features_json"`
	MetadataFeatures string          `db:"metadata_features_json"`
	OntologyVersion  string          `db:"ontology_version"`
	ScoringVersion   string          `db:"scoring_version"`
}

func (row statsRow) toDomain() (domain.AirportStats, error) {
	s := domain.AirportStats{
		AirportID:       row.ICAO,
		ReviewCount:     row.ReviewCount,
		TagCount:        row.TagCount,
		FailedReviews:   row.FailedReviews,
		RatingAvg:       ptrF64(row.RatingAvg),
		RatingCount:     row.RatingCount,
		LastReviewAt:    parseTime(row.LastReview),
		OntologyVersion: row.OntologyVersion,
		ScoringVersion:  row.ScoringVersion,
	}
	if err := json.Unmarshal([]byte(row.Facts), &s.Facts); err != nil {
		return s, fmt.Errorf("facts for %s: %w", row.ICAO, err)
	}
	if err := json.Unmarshal([]byte(row.ReviewFeatures), &s.Features.Review); err != nil {
		return s, fmt.Errorf("review features for %s: %w", row.ICAO, err)
	}
	if err := json.Unmarshal([]byte(row.MetadataFeatures), &s.Features.Metadata); err != nil {
		return s, fmt.Errorf("metadata features for %s: %w", row.ICAO, err)
	}
	return s, nil
}

type summaryRow struct {
	ICAO        string          `db:"icao"`
	Synopsis    string          `db:"synopsis"`
	Tags        string          `db:"tags_json"`
	RatingAvg   sql.NullFloat64 `db:"rating_avg"`
	RatingCount int             `db:"rating_count"`
	Hassle      string          `db:"hassle_level"`
	LastUpdated sql.NullString  `db:"last_updated_utc"`
}

type tagRow struct {
	ICAO       string         `db:"icao"`
	ReviewID   string         `db:"review_id"`
	Aspect     string         `db:"aspect"`
	Label      string         `db:"label"`
	Confidence float64        `db:"confidence"`
	ReviewTS   sql.NullString `db:"review_ts"`
}

type stateRow struct {
	ICAO      string         `db:"icao"`
	ReviewID  string         `db:"review_id"`
	ReviewTS  sql.NullString `db:"review_ts"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	Processed string         `db:"processed_utc"`
}

// ---------- writes ----------

func (r *Repo) ReplaceTags(ctx context.Context, airportID string, tags []domain.ReviewTag) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error { return replaceTags(ctx, tx, airportID, tags) })
}

func (r *Repo) UpsertStats(ctx context.Context, s domain.AirportStats) error {
	return r.upsertStats(ctx, r.db, s)
}

func (r *Repo) UpsertSummary(ctx context.Context, s domain.AirportSummary) error {
	return r.upsertSummary(ctx, r.db, s)
}

// CommitAirport replaces tags and review states and upserts stats and
// summary for one airport atomically. Readers see either the previous or
// the new state.
func (r *Repo) CommitAirport(ctx context.Context, w domain.AirportWrite) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := replaceTags(ctx, tx, w.AirportID, w.Tags); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		if err := replaceStates(ctx, tx, w.AirportID, w.States); err != nil {
			return fmt.Errorf("review state: %w", err)
		}
		if err := r.upsertStats(ctx, tx, w.Stats); err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if err := r.upsertSummary(ctx, tx, w.Summary); err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		if !w.ProcessedAt.IsZero() {
			if _, err := tx.ExecContext(ctx, r.dialect.upsertMeta, metaLastProcessed+w.AirportID, fmtTime(w.ProcessedAt)); err != nil {
				return fmt.Errorf("last processed: %w", err)
			}
		}
		return nil
	})
}

func (r *Repo) WriteBuildMetadata(ctx context.Context, m domain.BuildMetadata) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		kv := map[string]string{
			metaRunID:           m.RunID,
			metaSourceVersion:   m.SourceVersion,
			metaOntologyVersion: m.OntologyVersion,
			metaScoringVersion:  m.ScoringVersion,
		}
		if !m.LastBuild.IsZero() {
			kv[metaLastBuild] = fmtTime(m.LastBuild)
		}
		for icao, at := range m.LastProcessed {
			kv[metaLastProcessed+icao] = fmtTime(at)
		}
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, r.dialect.upsertMeta, k, kv[k]); err != nil {
				return fmt.Errorf("meta %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *Repo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// insertBatchRows keeps every multi-row INSERT well below the bind
// parameter limits of SQLite (32766) and MySQL (65535).
const insertBatchRows = 500

// insertRows writes rows in batches of insertBatchRows. Every row must have
// the same number of columns.
func insertRows(ctx context.Context, ex sqlx.ExecerContext, prefix string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertBatchRows {
		batch := rows[start:min(start+insertBatchRows, len(rows))]
		placeholder := "(?" + strings.Repeat(",?", len(batch[0])-1) + ")"
		values := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*len(batch[0]))
		for _, row := range batch {
			values = append(values, placeholder)
			args = append(args, row...)
		}
		if _, err := ex.ExecContext(ctx, prefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	return nil
}

func replaceTags(ctx context.Context, ex sqlx.ExecerContext, airportID string, tags []domain.ReviewTag) error {
	if _, err := ex.ExecContext(ctx, deleteTagsSQL, airportID); err != nil {
		return err
	}
	rows := make([][]any, 0, len(tags))
	for _, t := range tags {
		ts := t.Timestamp
		rows = append(rows, []any{airportID, t.ReviewID, t.Aspect, t.Label, t.Confidence, valTime(&ts)})
	}
	return insertRows(ctx, ex, insertTagPrefix, rows)
}

func replaceStates(ctx context.Context, ex sqlx.ExecerContext, airportID string, states []domain.ReviewState) error {
	if _, err := ex.ExecContext(ctx, deleteStatesSQL, airportID); err != nil {
		return err
	}
	rows := make([][]any, 0, len(states))
	for _, st := range states {
		ts := st.ReviewTimestamp
		rows = append(rows, []any{airportID, st.ReviewID, valTime(&ts), string(st.Status), st.Attempts, fmtTime(st.ProcessedAt)})
	}
	return insertRows(ctx, ex, insertStatePrefix, rows)
}

func (r *Repo) upsertStats(ctx context.Context, ex sqlx.ExecerContext, s domain.AirportStats) error {
	facts, err := valJSON(s.Facts)
	if err != nil {
		return err
	}
	rev, err := valJSON(nonNilScores(s.Features.Review))
	if err != nil {
		return err
	}
	meta, err := valJSON(nonNilScores(s.Features.Metadata))
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, r.dialect.upsertStats,
		s.AirportID,
		s.ReviewCount,
		s.TagCount,
		s.FailedReviews,
		valF64(s.RatingAvg),
		s.RatingCount,
		valTime(s.LastReviewAt),
		facts,
		rev,
		meta,
		s.OntologyVersion,
		s.ScoringVersion,
	)
	return err
}

func (r *Repo) upsertSummary(ctx context.Context, ex sqlx.ExecerContext, s domain.AirportSummary) error {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	tj, err := valJSON(tags)
	if err != nil {
		return err
	}
	hassle := s.HassleLevel
	if hassle == "" {
		hassle = domain.HassleNotAvailable
	}
	_, err = ex.ExecContext(ctx, r.dialect.upsertSummary,
		s.AirportID,
		s.Synopsis,
		tj,
		valF64(s.RatingAvg),
		s.RatingCount,
		string(hassle),
		valTime(s.LastUpdated),
	)
	return err
}

func nonNilScores(f domain.FeatureScores) domain.FeatureScores {
	if f == nil {
		return domain.FeatureScores{}
	}
	return f
}

// ---------- reads ----------

func (r *Repo) ReadStats(ctx context.Context, airportID string) (domain.AirportStats, error) {
	var row statsRow
	if err := sqlx.GetContext(ctx, r.db, &row, selectStatsSQL, airportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AirportStats{}, domain.ErrNotFound
		}
		return domain.AirportStats{}, err
	}
	return row.toDomain()
}

// ReadStatsMany returns the stored rows for the given airports. Airports
// without a row are absent from the map.
func (r *Repo) ReadStatsMany(ctx context.Context, airportIDs []string) (map[string]domain.AirportStats, error) {
	out := make(map[string]domain.AirportStats, len(airportIDs))
	for start := 0; start < len(airportIDs); start += insertBatchRows {
		chunk := airportIDs[start:min(start+insertBatchRows, len(airportIDs))]
		sb := r.dialect.flavor.NewSelectBuilder()
		sb.Select(statsColumns).
			From("ga_airfield_stats").
			Where(sb.In("icao", sqlbuilder.Flatten(chunk)...)).
			OrderBy("icao")
		query, args := sb.Build()

		var rows []statsRow
		if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
			return nil, err
		}
		for _, row := range rows {
			s, err := row.toDomain()
			if err != nil {
				return nil, err
			}
			out[s.AirportID] = s
		}
	}
	return out, nil
}

func (r *Repo) ReadSummary(ctx context.Context, airportID string) (domain.AirportSummary, error) {
	var row summaryRow
	if err := sqlx.GetContext(ctx, r.db, &row, selectSummarySQL, airportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AirportSummary{}, domain.ErrNotFound
		}
		return domain.AirportSummary{}, err
	}
	s := domain.AirportSummary{
		AirportID:   row.ICAO,
		Synopsis:    row.Synopsis,
		RatingAvg:   ptrF64(row.RatingAvg),
		RatingCount: row.RatingCount,
		HassleLevel: domain.HassleLevel(row.Hassle),
		LastUpdated: parseTime(row.LastUpdated),
	}
	if err := json.Unmarshal([]byte(row.Tags), &s.Tags); err != nil {
		return s, fmt.Errorf("summary tags for %s: %w", row.ICAO, err)
	}
	return s, nil
}

func (r *Repo) ReadTags(ctx context.Context, airportID string) ([]domain.ReviewTag, error) {
	var rows []tagRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, selectTagsSQL, airportID); err != nil {
		return nil, err
	}
	out := make([]domain.ReviewTag, 0, len(rows))
	for _, row := range rows {
		t := domain.ReviewTag{
			AirportID:  row.ICAO,
			ReviewID:   row.ReviewID,
			Aspect:     row.Aspect,
			Label:      row.Label,
			Confidence: row.Confidence,
		}
		if ts := parseTime(row.ReviewTS); ts != nil {
			t.Timestamp = *ts
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Repo) ReadAllAirportIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, selectAirportIDsSQL); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) ReadReviewStates(ctx context.Context, airportID string) (map[string]domain.ReviewState, error) {
	var rows []stateRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, selectStatesSQL, airportID); err != nil {
		return nil, err
	}
	out := make(map[string]domain.ReviewState, len(rows))
	for _, row := range rows {
		st := domain.ReviewState{
			AirportID: row.ICAO,
			ReviewID:  row.ReviewID,
			Status:    domain.ReviewStatus(row.Status),
			Attempts:  row.Attempts,
		}
		if ts := parseTime(row.ReviewTS); ts != nil {
			st.ReviewTimestamp = *ts
		}
		if ts := parseTime(sql.NullString{String: row.Processed, Valid: true}); ts != nil {
			st.ProcessedAt = *ts
		}
		out[row.ReviewID] = st
	}
	return out, nil
}

// ReadBuildMetadata returns the zero value on a store that was never built.
func (r *Repo) ReadBuildMetadata(ctx context.Context) (domain.BuildMetadata, error) {
	var rows []struct {
		Key   string `db:"meta_key"`
		Value string `db:"meta_value"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, selectMetaSQL); err != nil {
		return domain.BuildMetadata{}, err
	}
	m := domain.BuildMetadata{LastProcessed: map[string]time.Time{}}
	for _, kv := range rows {
		switch {
		case kv.Key == metaRunID:
			m.RunID = kv.Value
		case kv.Key == metaSourceVersion:
			m.SourceVersion = kv.Value
		case kv.Key == metaOntologyVersion:
			m.OntologyVersion = kv.Value
		case kv.Key == metaScoringVersion:
			m.ScoringVersion = kv.Value
		case kv.Key == metaLastBuild:
			if t := parseTime(sql.NullString{String: kv.Value, Valid: true}); t != nil {
				m.LastBuild = *t
			}
		case strings.HasPrefix(kv.Key, metaLastProcessed):
			if t := parseTime(sql.NullString{String: kv.Value, Valid: true}); t != nil {
				m.LastProcessed[strings.TrimPrefix(kv.Key, metaLastProcessed)] = *t
			}
		}
	}
	return m, nil
}

var _ domain.Store = (*Repo)(nil)
