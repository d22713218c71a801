package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SettingAPIKey is the settings key of the stored language-model credential.
const SettingAPIKey = "gemini_api_key"

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// SetSetting stores value under key, replacing any previous value.
func SetSetting(db DBExecutor, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key must be non-empty")
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("setting %q: value must be non-empty", key)
	}
	_, err := db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strings.TrimSpace(value), time.Now())
	if err != nil {
		return fmt.Errorf("store setting %q: %w", key, err)
	}
	return nil
}

// GetSetting returns the value stored under key and whether it exists.
func GetSetting(db DBExecutor, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, true, nil
}

// CreateOrGetSource returns the id of the source for url, inserting it when
// missing. Title, byline and site name of an existing source are refreshed
// when the new values are non-empty.
func CreateOrGetSource(db DBExecutor, url, title, byline, siteName string) (int64, error) {
	trimmedURL := strings.TrimSpace(url)
	if trimmedURL == "" {
		return 0, fmt.Errorf("url must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRow(`SELECT id FROM sources WHERE url = ?`, trimmedURL).Scan(&id)
		if err == nil {
			_, err = db.Exec(`UPDATE sources SET
				title = COALESCE(NULLIF(?, ''), title),
				byline = COALESCE(NULLIF(?, ''), byline),
				site_name = COALESCE(NULLIF(?, ''), site_name)
				WHERE id = ?`, title, byline, siteName, id)
			if err != nil {
				return 0, fmt.Errorf("refresh source: %w", err)
			}
			return id, nil
		}
		if err != sql.ErrNoRows {
			return 0, err
		}

		res, err := db.Exec(
			`INSERT INTO sources (url, title, byline, site_name, added_at) VALUES (?, ?, ?, ?, ?)`,
			trimmedURL, title, byline, siteName, time.Now(),
		)
		if err != nil {
			// Another writer inserted the same url; select again.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// CreateOrGetPhrase returns the id of the phrase with the given short
// explanation, inserting it when missing. A non-empty long explanation or
// translation replaces the stored one.
func CreateOrGetPhrase(db DBExecutor, p Phrase) (int64, error) {
	phrase := strings.TrimSpace(p.Phrase)
	if phrase == "" {
		return 0, fmt.Errorf("phrase must be non-empty")
	}

	var id int64
	query := `INSERT INTO phrases (phrase, short_explanation, long_explanation, translation)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(phrase, short_explanation)
			  DO UPDATE SET
			    long_explanation = COALESCE(NULLIF(excluded.long_explanation, ''), phrases.long_explanation),
			    translation = COALESCE(NULLIF(excluded.translation, ''), phrases.translation)
			  RETURNING id`

	err := db.QueryRow(query, phrase, p.ShortExplanation, p.LongExplanation, p.Translation).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert phrase: %w", err)
	}
	return id, nil
}

// LinkPhraseToSource records that a phrase was requested for a source.
// seen is added to the running count; applied marks that the phrase was
// found and wrapped on the page, and stays set once true.
func LinkPhraseToSource(db DBExecutor, phraseID, sourceID int64, applied bool, seen int) error {
	if phraseID <= 0 {
		return fmt.Errorf("phraseID must be positive")
	}
	if sourceID <= 0 {
		return fmt.Errorf("sourceID must be positive")
	}
	if seen < 1 {
		return fmt.Errorf("seen must be positive, got %d", seen)
	}

	now := time.Now()
	_, err := db.Exec(`INSERT INTO phrase_sources (phrase_id, source_id, applied, seen_count, first_seen_at, last_seen_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(phrase_id, source_id) DO UPDATE SET
	  seen_count = phrase_sources.seen_count + excluded.seen_count,
	  applied = MAX(phrase_sources.applied, excluded.applied),
	  last_seen_at = excluded.last_seen_at`,
		phraseID, sourceID, applied, seen, now, now)
	if err != nil {
		return fmt.Errorf("link phrase %d to source %d: %w", phraseID, sourceID, err)
	}
	return nil
}

// GetPhrasesBySource returns the phrases recorded for a source, oldest first.
func GetPhrasesBySource(db DBExecutor, sourceID int64) ([]PhraseSource, error) {
	rows, err := db.Query(`SELECT p.id, p.phrase, p.short_explanation, p.long_explanation, p.translation,
		ps.source_id, ps.applied, ps.seen_count, ps.first_seen_at
		FROM phrases p JOIN phrase_sources ps ON ps.phrase_id = p.id
		WHERE ps.source_id = ?
		ORDER BY ps.id`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhraseSource
	for rows.Next() {
		var ps PhraseSource
		var translation sql.NullString
		var firstSeen sql.NullTime
		if err := rows.Scan(&ps.ID, &ps.Phrase.Phrase, &ps.ShortExplanation, &ps.LongExplanation, &translation,
			&ps.SourceID, &ps.Applied, &ps.SeenCount, &firstSeen); err != nil {
			return nil, err
		}
		if translation.Valid {
			ps.Translation = translation.String
		}
		if firstSeen.Valid {
			ps.FirstSeenAt = firstSeen.Time
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSourceByURL returns the stored source for url.
func GetSourceByURL(db DBExecutor, url string) (Source, error) {
	var s Source
	var title, byline, site sql.NullString
	var added sql.NullTime
	err := db.QueryRow(`SELECT id, url, title, byline, site_name, added_at FROM sources WHERE url = ?`,
		strings.TrimSpace(url)).Scan(&s.ID, &s.URL, &title, &byline, &site, &added)
	if err != nil {
		return Source{}, err
	}
	s.Title, s.Byline, s.SiteName = title.String, byline.String, site.String
	if added.Valid {
		s.AddedAt = added.Time
	}
	return s, nil
}
