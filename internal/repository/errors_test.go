package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *logrus.Logger) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	logger, _ := test.NewNullLogger()
	return db, mock, logger
}

func TestMapPQError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique", err: &pq.Error{Code: "23505"}, want: ErrDuplicate},
		{name: "check", err: &pq.Error{Code: "23514"}, want: ErrConstraint},
		{name: "foreign key", err: &pq.Error{Code: "23503"}, want: ErrConstraint},
		{name: "not null", err: fmt.Errorf("exec: %w", &pq.Error{Code: "23502"}), want: ErrConstraint},
		{name: "other pq", err: &pq.Error{Code: "40001"}},
		{name: "not pq", err: plain, want: plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPQError(tt.err)
			if tt.want == nil {
				assert.Same(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}
