package recovery

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

type mockValueSource struct {
	mock.Mock
}

func (m *mockValueSource) DistinctValues(ctx context.Context, tableName string, columnName string) ([]string, error) {
	args := m.Called(ctx, tableName, columnName)
	values, _ := args.Get(0).([]string)
	return values, args.Error(1)
}

// staticSource serves fixed universes keyed by "table.column".
type staticSource map[string][]string

func (s staticSource) DistinctValues(_ context.Context, tableName string, columnName string) ([]string, error) {
	return s[tableName+"."+columnName], nil
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ExecuteQuery(ctx context.Context, query string) (*database.QueryResult, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).(*database.QueryResult)
	return res, args.Error(1)
}

func rows(n int) *database.QueryResult {
	res := &database.QueryResult{Columns: []string{"title"}, Rows: [][]string{}}
	for i := 0; i < n; i++ {
		res.Rows = append(res.Rows, []string{"row"})
	}
	return res
}
