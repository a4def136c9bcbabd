package utils

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

// DefaultResultRows is how many rows FormatQueryResult prints.
const DefaultResultRows = 10

// FormatQueryResult renders at most limit rows as "col: value" lines and notes
// how many were left out.
func FormatQueryResult(result *database.QueryResult, limit int) string {
	if result.RowCount() == 0 {
		return "No results found.\n"
	}
	if limit <= 0 {
		limit = DefaultResultRows
	}

	total := result.RowCount()
	rows := result.Rows
	var buffer bytes.Buffer
	if total > limit {
		buffer.WriteString(fmt.Sprintf("Found %d results. Here are the top %d:\n\n", total, limit))
		rows = rows[:limit]
	} else {
		buffer.WriteString(fmt.Sprintf("Found %d results:\n\n", total))
	}

	for i, row := range rows {
		fields := make([]string, 0, len(row))
		for j, value := range row {
			name := fmt.Sprintf("column%d", j+1)
			if j < len(result.Columns) {
				name = result.Columns[j]
			}
			fields = append(fields, fmt.Sprintf("%s: %s", name, value))
		}
		buffer.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.Join(fields, ", ")))
	}

	if total > limit {
		buffer.WriteString(fmt.Sprintf("\n... and %d more results\n", total-limit))
	}
	return buffer.String()
}
