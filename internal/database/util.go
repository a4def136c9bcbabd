package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NullText is how ExecuteQuery renders SQL NULL.
const NullText = "NULL"

// FormatValue renders a driver value as text without losing information.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// QuoteQualifiedName quotes each dot-separated part of name, so "public.film"
// becomes two quoted identifiers instead of one.
func QuoteQualifiedName(quote func(string) string, name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote(part)
	}
	return strings.Join(parts, ".")
}

// BuildDistinctValuesQuery is the dialect-neutral distinct-values statement.
func BuildDistinctValuesQuery(quote func(string) string, tableName string, columnName string) string {
	quotedTable := QuoteQualifiedName(quote, tableName)
	quotedColumn := quote(columnName)
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL", quotedColumn, quotedTable, quotedColumn)
}

// scanStrings reads a single-column result, coercing every non-null value to text.
func scanStrings(rows *sql.Rows) ([]string, error) {
	values := []string{}
	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("error scanning value: %w", err)
		}
		if raw == nil {
			continue
		}
		values = append(values, FormatValue(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return values, nil
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: [][]string{}}
	raw := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]string, len(columns))
		for i, v := range raw {
			if v == nil {
				row[i] = NullText
				continue
			}
			row[i] = FormatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
