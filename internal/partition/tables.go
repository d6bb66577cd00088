package partition

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Table is one entry of the published table index.
type Table struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListTables fetches the table index at url. Each non-comment line is "<table> <url>";
// malformed lines are skipped.
func ListTables(ctx context.Context, client *http.Client, url string) ([]Table, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch table index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return parseTables(resp.Body)
}

func parseTables(r io.Reader) ([]Table, error) {
	var tables []Table
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		tables = append(tables, Table{Name: parts[0], URL: parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table index: %w", err)
	}
	return tables, nil
}
