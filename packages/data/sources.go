package data

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"

	// SQLite driver for database-backed data sources. Other drivers can be
	// blank-imported by the embedding test project.
	_ "github.com/mattn/go-sqlite3"
)

const queryTimeout = 30 * time.Second

// loadDelimited reads a CSV or TSV file whose first record is the header row.
func loadDelimited(path string, sep rune) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadSheet reads one worksheet from an xlsx workbook, first row as header.
func loadSheet(path, sheet string) ([]map[string]any, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	if sheet == "" {
		sheet = wb.GetSheetName(0)
	}
	records, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON reads a JSON document. With no path the document itself must be an
// array of objects; otherwise path selects the array (gjson syntax).
func loadJSON(path, jsonPath string) ([]map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(b)
	if jsonPath != "" {
		doc = doc.Get(jsonPath)
		if !doc.Exists() {
			return nil, fmt.Errorf("path %q not found in %s", jsonPath, path)
		}
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("%s: expected a JSON array of objects", path)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(doc.Raw), &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// loadQuery runs a SQL query and converts the result set into rows.
func loadQuery(connection, query string) ([]map[string]any, error) {
	driver, dsn, err := parseConnection(connection)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	sqlRows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer sqlRows.Close()

	cols, err := sqlRows.Columns()
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for sqlRows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, sqlRows.Err()
}

// parseConnection maps a connection URL onto a database/sql driver name and
// DSN. sqlite://path/to.db, postgres://..., mysql://...
func parseConnection(connection string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(connection, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(connection, "sqlite://"), nil
	case strings.HasPrefix(connection, "postgres://"), strings.HasPrefix(connection, "postgresql://"):
		return "postgres", connection, nil
	case strings.HasPrefix(connection, "mysql://"):
		u, err := url.Parse(connection)
		if err != nil {
			return "", "", fmt.Errorf("invalid mysql connection string: %w", err)
		}
		dsn := ""
		if u.User != nil {
			dsn = u.User.String() + "@"
		}
		return "mysql", dsn + "tcp(" + u.Host + ")" + u.Path, nil
	default:
		return "", "", fmt.Errorf("unsupported connection string %q", connection)
	}
}

// applyFilter keeps rows matching a gjson array-query expression.
func applyFilter(rows []map[string]any, filter string) ([]map[string]any, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	matched := gjson.GetBytes(b, "#("+filter+")#")
	if !matched.Exists() {
		return []map[string]any{}, nil
	}

	var out []map[string]any
	if err := json.Unmarshal([]byte(matched.Raw), &out); err != nil {
		return nil, fmt.Errorf("filter produced a non-row result: %w", err)
	}
	return out, nil
}
