package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

func newPassageRepoWithMock(t *testing.T) (*PassageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &PassageRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestReplaceCorpusWritesInOneTransaction(t *testing.T) {
	repo, mock, done := newPassageRepoWithMock(t)
	defer done()

	corpus := domain.Corpus{
		Version: "v1",
		Model:   "nomic-embed-text",
		Passages: []domain.Passage{
			{ID: "summary.pdf#0000", Ordinal: 0, Source: "summary.pdf", Page: 1, Text: "take medication"},
			{ID: "summary.pdf#0001", Ordinal: 1, Source: "summary.pdf", Page: 2, WordOffset: 2, Text: "with food"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM corpora").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO corpora").
		WithArgs("v1", "nomic-embed-text", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO passages")
	mock.ExpectExec("INSERT INTO passages").
		WithArgs("v1", "summary.pdf#0000", 0, "summary.pdf", 1, 0, "take medication").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO passages").
		WithArgs("v1", "summary.pdf#0001", 1, "summary.pdf", 2, 2, "with food").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceCorpus(context.Background(), corpus); err != nil {
		t.Fatalf("ReplaceCorpus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceCorpusRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newPassageRepoWithMock(t)
	defer done()

	corpus := domain.Corpus{
		Version:  "v1",
		Model:    "m",
		Passages: []domain.Passage{{ID: "a#0000", Ordinal: 0, Source: "a", Page: 1, Text: "x"}},
	}

	boom := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM corpora").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO corpora").
		WithArgs("v1", "m", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO passages")
	mock.ExpectExec("INSERT INTO passages").
		WithArgs("v1", "a#0000", 0, "a", 1, 0, "x").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.ReplaceCorpus(context.Background(), corpus)
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert failure, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadCorpusUnknownVersionIsIndexInconsistency(t *testing.T) {
	repo, mock, done := newPassageRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT model FROM corpora").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LoadCorpus(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrIndexInconsistency) {
		t.Fatalf("expected ErrIndexInconsistency, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadCorpusOrdersPassagesByOrdinal(t *testing.T) {
	repo, mock, done := newPassageRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT model FROM corpora").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"model"}).AddRow("nomic-embed-text"))
	mock.ExpectQuery("SELECT id, ordinal, source, page, word_offset, text").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ordinal", "source", "page", "word_offset", "text"}).
			AddRow("a#0000", 0, "a", 1, 0, "first").
			AddRow("a#0001", 1, "a", 1, 5, "second"))

	corpus, err := repo.LoadCorpus(context.Background(), "v1")
	if err != nil {
		t.Fatalf("LoadCorpus() error = %v", err)
	}
	if corpus.Model != "nomic-embed-text" || len(corpus.Passages) != 2 {
		t.Fatalf("unexpected corpus: %+v", corpus)
	}
	if corpus.Passages[0].Text != "first" || corpus.Passages[1].WordOffset != 5 {
		t.Fatalf("passages not ordered/scanned: %+v", corpus.Passages)
	}
}

func TestLatestVersionEmptyWhenNoCorpus(t *testing.T) {
	repo, mock, done := newPassageRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT version FROM corpora").
		WillReturnError(sql.ErrNoRows)

	version, err := repo.LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if version != "" {
		t.Fatalf("expected empty version, got %q", version)
	}
}
