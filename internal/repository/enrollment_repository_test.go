package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentRepositoryListActiveByClasses(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_name", "class_id", "class_name", "class_level", "school_year_id", "school_year_name"}).
		AddRow("stu-1", "Alice", "c-1", "GS A", "GS", "sy-1", "2024/2025").
		AddRow("stu-2", "Bob", "c-1", "GS A", "GS", "sy-1", "2024/2025")
	mock.ExpectQuery("FROM enrollments e").
		WithArgs(sqlmock.AnyArg(), "sy-1", "ACTIVE").
		WillReturnRows(rows)

	students, err := repo.ListActiveByClasses(context.Background(), []string{"c-1"}, "sy-1")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "GS", students[0].ClassLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveByClassesEmpty(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	students, err := repo.ListActiveByClasses(context.Background(), nil, "sy-1")
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}
