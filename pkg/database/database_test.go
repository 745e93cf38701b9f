package database_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blociq/blociq-backend/pkg/database"
	apperrors "github.com/blociq/blociq-backend/pkg/errors"
	"github.com/blociq/blociq-backend/pkg/testutil"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantField  string
	}{
		{"unique", &pq.Error{Code: "23505"}, http.StatusConflict, ""},
		{"foreign key", &pq.Error{Code: "23503"}, http.StatusBadRequest, ""},
		{"not null", &pq.Error{Code: "23502", Column: "building_id"}, http.StatusBadRequest, "building_id"},
		{"due date check", &pq.Error{Code: "23514", Constraint: "compliance_assets_due_after_inspection"},
			http.StatusBadRequest, "next_due_date"},
		{"invalid date", &pq.Error{Code: "22008"}, http.StatusUnprocessableEntity, ""},
		{"wrapped", fmt.Errorf("apply patch: %w", &pq.Error{Code: "23505"}), http.StatusConflict, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := database.MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
			if tt.wantField != "" {
				assert.Contains(t, appErr.Details, tt.wantField)
			}
		})
	}

	assert.Nil(t, database.MapPQError(errors.New("plain")))
	assert.Nil(t, database.MapPQError(&pq.Error{Code: "40001"}))
}

func TestTransaction(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := database.Wrap(mockDB.DB, nil)

	t.Run("commit", func(t *testing.T) {
		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE compliance_assets SET status = $1").
			WithArgs("Compliant").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
			_, err := tx.Exec("UPDATE compliance_assets SET status = $1", "Compliant")
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		mockDB.ExpectBegin()
		mockDB.ExpectRollback()

		boom := apperrors.NotFound("compliance asset")
		err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
			return boom
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	mockDB.ExpectationsWereMet(t)
}

func TestMigrate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := database.Wrap(mockDB.DB, nil)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("CREATE TABLE a ()").WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("CREATE TABLE b ()").WillReturnError(errors.New("already exists"))
	mockDB.ExpectRollback()

	err := db.Migrate(context.Background(), []string{"CREATE TABLE a ()", "CREATE TABLE b ()"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	mockDB.ExpectationsWereMet(t)
}
