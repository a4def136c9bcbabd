package sqlserver

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

func newMockSQLServerDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, *sqlServerHandler) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	handler := sqlServerHandler{}
	return &database.DB{
		Pool:    mockDb,
		Handler: &handler,
		Config:  config.DatabaseConfig{Dialect: "sqlserver"},
	}, mock, &handler
}

func TestSQLServerQuoteIdentifier(t *testing.T) {
	handler := sqlServerHandler{}
	tests := []struct {
		in   string
		want string
	}{
		{"film", "[film]"},
		{"weird]name", "[weird]]name]"},
		{"with space", "[with space]"},
	}
	for _, tt := range tests {
		if got := handler.QuoteIdentifier(tt.in); got != tt.want {
			t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLServerListColumns(t *testing.T) {
	tests := []struct {
		name          string
		tableName     string
		expectedCount int
		expectError   bool
		mockSetup     func(sqlmock.Sqlmock)
	}{
		{
			name:          "Success",
			tableName:     "film",
			expectedCount: 2,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).
					AddRow("film_id", "int").
					AddRow("title", "nvarchar")
				mock.ExpectQuery(`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA\.COLUMNS WHERE TABLE_NAME = @p1`).WithArgs("film").WillReturnRows(rows)
			},
		},
		{
			name:        "Database query error",
			tableName:   "film",
			expectError: true,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA\.COLUMNS`).WithArgs("film").WillReturnError(errors.New("database connection failed"))
			},
		},
		{
			name:        "Row scanning error",
			tableName:   "film",
			expectError: true,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).AddRow(nil, "int")
				mock.ExpectQuery(`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA\.COLUMNS`).WithArgs("film").WillReturnRows(rows)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, handler := newMockSQLServerDB(t)
			defer db.Close()
			tt.mockSetup(mock)

			cols, err := handler.ListColumns(context.Background(), db, tt.tableName)
			if tt.expectError {
				if err == nil {
					t.Fatalf("ListColumns() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ListColumns() unexpected error: %v", err)
			}
			if len(cols) != tt.expectedCount {
				t.Errorf("ListColumns() returned %d columns, want %d", len(cols), tt.expectedCount)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestSQLServerDistinctValues(t *testing.T) {
	db, mock, handler := newMockSQLServerDB(t)
	defer db.Close()

	query := handler.DistinctValuesQuery("dbo.category", "name")
	if want := "SELECT DISTINCT [name] FROM [dbo].[category] WHERE [name] IS NOT NULL"; query != want {
		t.Fatalf("DistinctValuesQuery() = %q, want %q", query, want)
	}

	rows := sqlmock.NewRows([]string{"name"}).AddRow("Comedy").AddRow("Sci-Fi")
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)

	values, err := db.DistinctValues(context.Background(), "dbo.category", "name")
	if err != nil {
		t.Fatalf("DistinctValues() unexpected error: %v", err)
	}
	if len(values) != 2 || values[1] != "Sci-Fi" {
		t.Errorf("DistinctValues() = %v", values)
	}
}

func TestSQLServerConnectionURL(t *testing.T) {
	raw := connectionURL("sa", "p@ss:word", "localhost:1433", "dvdrental")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("connectionURL() produced unparsable URL %q: %v", raw, err)
	}
	if u.Scheme != "sqlserver" || u.Host != "localhost:1433" {
		t.Errorf("connectionURL() = %q", raw)
	}
	if pw, _ := u.User.Password(); pw != "p@ss:word" {
		t.Errorf("password round-trip = %q", pw)
	}
	if got := u.Query().Get("database"); got != "dvdrental" {
		t.Errorf("database param = %q, want dvdrental", got)
	}
}
