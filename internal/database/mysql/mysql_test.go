package mysql

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

func newMockMySQLDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, *mysqlHandler) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	handler := mysqlHandler{}
	return &database.DB{
		Pool:    mockDb,
		Handler: &handler,
		Config:  config.DatabaseConfig{Dialect: "mysql"},
	}, mock, &handler
}

func TestMySQLQuoteIdentifier(t *testing.T) {
	handler := mysqlHandler{}
	tests := []struct {
		in   string
		want string
	}{
		{"film", "`film`"},
		{"my`table", "`my``table`"},
		{"", "``"},
	}
	for _, tt := range tests {
		if got := handler.QuoteIdentifier(tt.in); got != tt.want {
			t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMySQLListTables(t *testing.T) {
	tests := []struct {
		name          string
		expected      []string
		expectedError string
		mockSetup     func(sqlmock.Sqlmock)
	}{
		{
			name:     "Success",
			expected: []string{"actor", "film"},
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("actor").AddRow("film")
				mock.ExpectQuery(`SELECT TABLE_NAME FROM information_schema\.TABLES WHERE TABLE_SCHEMA = DATABASE\(\)`).WillReturnRows(rows)
			},
		},
		{
			name:          "Database query error",
			expectedError: "error querying tables",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT TABLE_NAME FROM information_schema\.TABLES`).WillReturnError(errors.New("database connection failed"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, handler := newMockMySQLDB(t)
			defer db.Close()
			tt.mockSetup(mock)

			tables, err := handler.ListTables(context.Background(), db)
			if tt.expectedError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
					t.Fatalf("ListTables() error = %v, want containing %q", err, tt.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListTables() unexpected error: %v", err)
			}
			if strings.Join(tables, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("ListTables() = %v, want %v", tables, tt.expected)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestMySQLListColumns(t *testing.T) {
	db, mock, handler := newMockMySQLDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE"}).
		AddRow("first_name", "varchar(45)").
		AddRow("last_name", "varchar(45)")
	mock.ExpectQuery(`SELECT COLUMN_NAME, COLUMN_TYPE\s+FROM information_schema\.COLUMNS`).WithArgs("customer").WillReturnRows(rows)

	cols, err := handler.ListColumns(context.Background(), db, "customer")
	if err != nil {
		t.Fatalf("ListColumns() unexpected error: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "first_name" || cols[1].DataType != "varchar(45)" {
		t.Errorf("ListColumns() = %+v", cols)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestMySQLDistinctValues(t *testing.T) {
	db, mock, handler := newMockMySQLDB(t)
	defer db.Close()

	query := handler.DistinctValuesQuery("sakila.film", "title")
	if want := "SELECT DISTINCT CAST(`title` AS CHAR) FROM `sakila`.`film` WHERE `title` IS NOT NULL"; query != want {
		t.Fatalf("DistinctValuesQuery() = %q, want %q", query, want)
	}

	rows := sqlmock.NewRows([]string{"title"}).AddRow([]byte("ACADEMY DINOSAUR")).AddRow([]byte("ACE GOLDFINGER"))
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)

	values, err := db.DistinctValues(context.Background(), "sakila.film", "title")
	if err != nil {
		t.Fatalf("DistinctValues() unexpected error: %v", err)
	}
	if len(values) != 2 || values[0] != "ACADEMY DINOSAUR" {
		t.Errorf("DistinctValues() = %v", values)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestMySQLStandardConfig(t *testing.T) {
	handler := mysqlHandler{}
	cfg := handler.config("root", "secret", "tcp", "localhost:3306", "sakila")
	dsn := cfg.FormatDSN()
	if !strings.Contains(dsn, "root:secret@tcp(localhost:3306)/sakila") {
		t.Errorf("FormatDSN() = %q", dsn)
	}
	if !cfg.ParseTime {
		t.Errorf("expected ParseTime to be enabled")
	}
}

func TestMySQLCloudSQLPoolRequiresParameters(t *testing.T) {
	handler := mysqlHandler{}
	if _, err := handler.CreateCloudSQLPool(config.DatabaseConfig{Dialect: "cloudsqlmysql", User: "root"}); err == nil {
		t.Errorf("CreateCloudSQLPool() expected error for missing parameters")
	}
}
