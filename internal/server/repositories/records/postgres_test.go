package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestPostgresList_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"a","name":"North"}`)).
		AddRow([]byte(`{"id":"b","name":"South"}`))
	mock.ExpectQuery(`(?s)^SELECT\s+data\s+FROM\s+records\s+WHERE\s+kind\s*=\s*\$1\s+ORDER\s+BY\s+seq$`).
		WithArgs("silos").
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), models.KindSilos)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].ID() != "a" || got[1]["name"] != "South" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresList_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM records`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	got, err := repo.List(context.Background(), models.KindUsers)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestPostgresList_BadJSON(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM records`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{`)))

	if _, err := repo.List(context.Background(), models.KindUsers); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPostgresGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+data\s+FROM\s+records\s+WHERE\s+kind\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`).
		WithArgs("clients", "x").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), models.KindClients, "x")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestPostgresGet_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM records`).WithArgs("clients", "x").
		WillReturnError(errors.New("db down"))

	_, err := repo.Get(context.Background(), models.KindClients, "x")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+records\s*\(kind,\s*id,\s*data\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)$`).
		WithArgs("cereals", "c1", `{"id":"c1","name":"Wheat"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), models.KindCereals, models.Record{"id": "c1", "name": "Wheat"})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdate_RowsAffected(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
		anyErr   bool
	}{
		{name: "one row", affected: 1},
		{name: "missing", affected: 0, wantErr: common.ErrorNotFound},
		{name: "too many", affected: 2, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(`(?s)^UPDATE\s+records\s+SET\s+data\s*=\s*\$3,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+kind\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`).
				WithArgs("drivers", "d1", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.Update(context.Background(), models.KindDrivers, models.Record{"id": "d1"})
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatalf("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("Update error: %v", err)
				}
			}
		})
	}
}

func TestPostgresDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+records\s+WHERE\s+kind\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`
	mock.ExpectExec(q).WithArgs("companies", "k1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("companies", "k1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), models.KindCompanies, "k1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(context.Background(), models.KindCompanies, "k1"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound on second delete, got %v", err)
	}
}
