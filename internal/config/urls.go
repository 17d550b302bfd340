package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoURL is returned when the URL table has no entry for a year.
var ErrNoURL = errors.New("no URL configured for year")

// URLTable maps a fiscal year to the page its SF133 workbooks are published
// on.
type URLTable struct {
	URLs map[string]string `json:"sf133_urls" yaml:"sf133_urls" toml:"sf133_urls"`
}

// LoadURLTable reads a URL table. The format follows the file extension:
// .json, .yaml/.yml or .toml. All formats use a top-level "sf133_urls"
// table keyed by year. A missing file yields an empty table.
func LoadURLTable(path string) (*URLTable, error) {
	table := &URLTable{URLs: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read URL table: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, table)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, table)
	case ".toml":
		err = toml.Unmarshal(data, table)
	default:
		return nil, fmt.Errorf("unsupported URL table format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL table %s: %w", path, err)
	}
	if table.URLs == nil {
		table.URLs = map[string]string{}
	}

	// Keys are stored in canonical form so Lookup finds " 2024" as 2024.
	urls := make(map[string]string, len(table.URLs))
	for key, url := range table.URLs {
		year, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("URL table key %q is not a fiscal year", key)
		}
		canonical := strconv.Itoa(year)
		if _, dup := urls[canonical]; dup {
			return nil, fmt.Errorf("URL table lists fiscal year %d twice", year)
		}
		urls[canonical] = url
	}
	table.URLs = urls

	return table, nil
}

// Lookup returns the URL for a year.
func (t *URLTable) Lookup(year int) (string, error) {
	if t != nil {
		if url, ok := t.URLs[strconv.Itoa(year)]; ok && strings.TrimSpace(url) != "" {
			return strings.TrimSpace(url), nil
		}
	}
	return "", fmt.Errorf("%w %d (available: %v)", ErrNoURL, year, t.Years())
}

// Set records a URL override for a year.
func (t *URLTable) Set(year int, url string) {
	if t.URLs == nil {
		t.URLs = map[string]string{}
	}
	t.URLs[strconv.Itoa(year)] = url
}

// Years lists the configured years in ascending order.
func (t *URLTable) Years() []int {
	if t == nil {
		return nil
	}
	years := make([]int, 0, len(t.URLs))
	for key := range t.URLs {
		if y, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}
