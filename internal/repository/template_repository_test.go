package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func newTemplateRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTemplateRepositoryCreateWritesFirstSnapshot(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO templates").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO template_versions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	template := &models.Template{Name: "Report card", Pages: models.Pages{{Title: "p1"}}}
	snapshot := &models.VersionSnapshot{Pages: template.Pages.Clone(), CreatedBy: "admin-1"}
	require.NoError(t, repo.Create(context.Background(), template, snapshot))

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, 1, template.CurrentVersion)
	assert.Equal(t, template.ID, snapshot.TemplateID)
	assert.Equal(t, 1, snapshot.Version)
	assert.Equal(t, models.SaveTypeManual, snapshot.SaveType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryCreateRollsBackOnSnapshotFailure(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO templates").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO template_versions").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Template{Name: "x"}, &models.VersionSnapshot{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryAppendVersion(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_version FROM templates WHERE id = $1 FOR UPDATE")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}).AddRow(2))
	mock.ExpectExec("INSERT INTO template_versions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE templates SET pages = $2, current_version = $3")).
		WithArgs("tpl-1", sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snapshot, err := repo.AppendVersion(context.Background(), AppendVersionParams{
		TemplateID:        "tpl-1",
		Pages:             models.Pages{{Title: "p1"}},
		CreatedBy:         "admin-1",
		ChangeDescription: "added signature",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Version)
	assert.Equal(t, models.SaveTypeManual, snapshot.SaveType)
	assert.Equal(t, "added signature", snapshot.ChangeDescription)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryAppendVersionUnknownTemplate(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_version FROM templates").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}))
	mock.ExpectRollback()

	_, err := repo.AppendVersion(context.Background(), AppendVersionParams{TemplateID: "missing"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryGetVersion(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	rows := sqlmock.NewRows([]string{"template_id", "version", "pages", "created_at", "created_by", "change_description", "save_type"}).
		AddRow("tpl-1", 2, []byte(`[{"title":"p1","blocks":[{"type":"language_toggle","props":{"blockId":"b1"}}]}]`), time.Now(), "admin-1", "edit", "manual")
	mock.ExpectQuery("SELECT template_id, version, pages").
		WithArgs("tpl-1", 2).
		WillReturnRows(rows)

	snapshot, err := repo.GetVersion(context.Background(), "tpl-1", 2)
	require.NoError(t, err)
	require.Len(t, snapshot.Pages, 1)
	assert.Equal(t, "b1", snapshot.Pages[0].Blocks[0].Props.BlockID())
	assert.Equal(t, models.SaveTypeManual, snapshot.SaveType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryListVersions(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	rows := sqlmock.NewRows([]string{"template_id", "version", "pages", "created_at", "created_by", "change_description", "save_type"}).
		AddRow("tpl-1", 2, []byte(`[]`), time.Now(), "admin-1", "second", "manual").
		AddRow("tpl-1", 1, []byte(`[]`), time.Now(), "admin-1", "", "manual")
	mock.ExpectQuery("ORDER BY version DESC").WithArgs("tpl-1").WillReturnRows(rows)

	snapshots, err := repo.ListVersions(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, 2, snapshots[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
