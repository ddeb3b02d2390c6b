package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

// PassageRepository stores the chunked corpus each published index pair
// was built over. Old corpus versions are kept so a restart can restore
// the latest consistent pair without re-extracting documents.
type PassageRepository struct {
	db *sql.DB
}

func NewPassageRepository(db *sql.DB) *PassageRepository {
	return &PassageRepository{db: db}
}

func (r *PassageRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082502)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS corpora (
	version TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS passages (
	corpus_version TEXT NOT NULL REFERENCES corpora(version) ON DELETE CASCADE,
	id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	source TEXT NOT NULL,
	page INTEGER NOT NULL,
	word_offset INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (corpus_version, id)
);

CREATE INDEX IF NOT EXISTS idx_corpora_created_at ON corpora(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReplaceCorpus writes the corpus in one transaction. A rebuild that
// dies halfway leaves no partial version behind.
func (r *PassageRepository) ReplaceCorpus(ctx context.Context, corpus domain.Corpus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corpus tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corpora WHERE version = $1`, corpus.Version); err != nil {
		return fmt.Errorf("delete stale corpus: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO corpora (version, model, created_at) VALUES ($1,$2,$3)
`, corpus.Version, corpus.Model, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert corpus: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO passages (corpus_version, id, ordinal, source, page, word_offset, text)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`)
	if err != nil {
		return fmt.Errorf("prepare passage insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range corpus.Passages {
		if _, err := stmt.ExecContext(ctx, corpus.Version, p.ID, p.Ordinal, p.Source, p.Page, p.WordOffset, p.Text); err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit corpus tx: %w", err)
	}
	return nil
}

func (r *PassageRepository) LoadCorpus(ctx context.Context, version string) (domain.Corpus, error) {
	corpus := domain.Corpus{Version: version}

	row := r.db.QueryRowContext(ctx, `SELECT model FROM corpora WHERE version = $1`, version)
	if err := row.Scan(&corpus.Model); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Corpus{}, domain.WrapError(domain.ErrIndexInconsistency, "postgres.LoadCorpus",
				fmt.Errorf("corpus version %s not stored", version))
		}
		return domain.Corpus{}, fmt.Errorf("scan corpus: %w", err)
	}

	// Passage ids embed the source and a zero-padded ordinal, so sorting
	// by id yields source order then chunk order.
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ordinal, source, page, word_offset, text
FROM passages
WHERE corpus_version = $1
ORDER BY id ASC
`, version)
	if err != nil {
		return domain.Corpus{}, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.Ordinal, &p.Source, &p.Page, &p.WordOffset, &p.Text); err != nil {
			return domain.Corpus{}, fmt.Errorf("scan passage: %w", err)
		}
		corpus.Passages = append(corpus.Passages, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Corpus{}, fmt.Errorf("iterate passages: %w", err)
	}
	return corpus, nil
}

// LatestVersion returns the most recently written corpus version, or
// an empty string when no corpus has ever been built.
func (r *PassageRepository) LatestVersion(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT version FROM corpora ORDER BY created_at DESC LIMIT 1
`)
	var version string
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("scan latest corpus version: %w", err)
	}
	return version, nil
}
