package database

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/devbackplane/backplane/pkg/sprint"
)

func newMockMirror(t *testing.T) (*Mirror, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Mirror{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestMirror_Write_UpsertsSnapshot(t *testing.T) {
	mirror, mock := newMockMirror(t)

	state := &sprint.SprintState{
		CurrentSprint: &sprint.SprintMeta{ID: "SPR-1", Name: "Sprint 1"},
		Issues: []sprint.SprintIssue{
			{Key: "AAP-1", Summary: "first issue"},
		},
		LastUpdated: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO sprint_state_mirror`).
		WithArgs("SPR-1", "Sprint 1", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := mirror.Write(state); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMirror_Write_NilStateIsNoOp(t *testing.T) {
	mirror, mock := newMockMirror(t)
	if err := mirror.Write(nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected exec calls: %v", err)
	}
}

func TestMirror_Write_NoCurrentSprintIsNoOp(t *testing.T) {
	mirror, mock := newMockMirror(t)
	if err := mirror.Write(&sprint.SprintState{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected exec calls: %v", err)
	}
}
