package storage

import "github.com/huandu/go-sqlbuilder"

// dialect carries the statements whose syntax differs between engines.
type dialect struct {
	name          string
	flavor        sqlbuilder.Flavor
	upsertStats   string
	upsertSummary string
	upsertMeta    string
	tableExists   string
}

const statsColumns = `icao, review_count, tag_count, failed_reviews, rating_avg, rating_count,
  last_review_utc, facts_json, review_features_json, metadata_features_json,
  ontology_version, scoring_version`

const summaryColumns = `icao, synopsis, tags_json, rating_avg, rating_count, hassle_level, last_updated_utc`

var sqliteDialect = dialect{
	name:   "sqlite3",
	flavor: sqlbuilder.SQLite,
	upsertStats: `
INSERT INTO ga_airfield_stats
  (` + statsColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (icao) DO UPDATE SET
  review_count           = excluded.review_count,
  tag_count              = excluded.tag_count,
  failed_reviews         = excluded.failed_reviews,
  rating_avg             = excluded.rating_avg,
  rating_count           = excluded.rating_count,
  last_review_utc        = excluded.last_review_utc,
  facts_json             = excluded.facts_json,
  review_features_json   = excluded.review_features_json,
  metadata_features_json = excluded.metadata_features_json,
  ontology_version       = excluded.ontology_version,
  scoring_version        = excluded.scoring_version
`,
	upsertSummary: `
INSERT INTO ga_summaries
  (` + summaryColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (icao) DO UPDATE SET
  synopsis         = excluded.synopsis,
  tags_json        = excluded.tags_json,
  rating_avg       = excluded.rating_avg,
  rating_count     = excluded.rating_count,
  hassle_level     = excluded.hassle_level,
  last_updated_utc = excluded.last_updated_utc
`,
	upsertMeta: `
INSERT INTO ga_meta_info (meta_key, meta_value) VALUES (?, ?)
ON CONFLICT (meta_key) DO UPDATE SET meta_value = excluded.meta_value
`,
	tableExists: `SELECT COUNT(*) FROM aip.sqlite_master WHERE type = 'table' AND name = ?`,
}

var mysqlDialect = dialect{
	name:   "mysql",
	flavor: sqlbuilder.MySQL,
	upsertStats: `
INSERT INTO ga_airfield_stats
  (` + statsColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  review_count           = VALUES(review_count),
  tag_count              = VALUES(tag_count),
  failed_reviews         = VALUES(failed_reviews),
  rating_avg             = VALUES(rating_avg),
  rating_count           = VALUES(rating_count),
  last_review_utc        = VALUES(last_review_utc),
  facts_json             = VALUES(facts_json),
  review_features_json   = VALUES(review_features_json),
  metadata_features_json = VALUES(metadata_features_json),
  ontology_version       = VALUES(ontology_version),
  scoring_version        = VALUES(scoring_version)
`,
	upsertSummary: `
INSERT INTO ga_summaries
  (` + summaryColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  synopsis         = VALUES(synopsis),
  tags_json        = VALUES(tags_json),
  rating_avg       = VALUES(rating_avg),
  rating_count     = VALUES(rating_count),
  hassle_level     = VALUES(hassle_level),
  last_updated_utc = VALUES(last_updated_utc)
`,
	upsertMeta: `
INSERT INTO ga_meta_info (meta_key, meta_value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)
`,
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
}

// Statements shared by both engines.
const (
	deleteTagsSQL   = `DELETE FROM ga_review_tags WHERE icao = ?`
	deleteStatesSQL = `DELETE FROM ga_review_state WHERE icao = ?`

	insertTagPrefix   = "INSERT INTO ga_review_tags (icao, review_id, aspect, label, confidence, review_ts) VALUES "
	insertStatePrefix = "INSERT INTO ga_review_state (icao, review_id, review_ts, status, attempts, processed_utc) VALUES "

	selectStatsSQL = `SELECT ` + statsColumns + ` FROM ga_airfield_stats WHERE icao = ?`

	selectSummarySQL = `SELECT ` + summaryColumns + ` FROM ga_summaries WHERE icao = ?`

	selectTagsSQL = `
SELECT icao, review_id, aspect, label, confidence, review_ts
FROM ga_review_tags
WHERE icao = ?
ORDER BY review_id, aspect, label`

	selectStatesSQL = `
SELECT icao, review_id, review_ts, status, attempts, processed_utc
FROM ga_review_state
WHERE icao = ?`

	selectAirportIDsSQL = `SELECT icao FROM ga_airfield_stats ORDER BY icao`

	selectMetaSQL = `SELECT meta_key, meta_value FROM ga_meta_info`
)
