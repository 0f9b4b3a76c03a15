package report

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed regions.csv
var embeddedRegions []byte

// Regions maps a two-digit area code to its region name.
type Regions map[string]string

// Lookup returns the region for an area code.
func (r Regions) Lookup(areaCode string) (string, bool) {
	name, ok := r[strings.TrimSpace(areaCode)]
	return name, ok
}

// DefaultRegions returns the built-in Brazilian area-code table.
func DefaultRegions() Regions {
	r, err := ParseRegions(bytes.NewReader(embeddedRegions))
	if err != nil {
		panic(fmt.Sprintf("report: embedded region table: %v", err))
	}
	return r
}

// LoadRegions reads a region table from path, or returns the built-in table
// when path is empty.
func LoadRegions(path string) (Regions, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegions(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open region table: %w", err)
	}
	defer f.Close()
	return ParseRegions(f)
}

// ParseRegions decodes a CSV with area_code and region columns.
func ParseRegions(r io.Reader) (Regions, error) {
	cr := csv.NewReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("report: read region header: %w", err)
	}
	codeIdx, regionIdx := -1, -1
	available := make([]string, 0, len(head))
	for i, h := range head {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		available = append(available, name)
		switch name {
		case "area_code":
			codeIdx = i
		case "region":
			regionIdx = i
		}
	}
	if codeIdx < 0 {
		return nil, &MissingColumnError{Column: "area_code", Available: available}
	}
	if regionIdx < 0 {
		return nil, &MissingColumnError{Column: "region", Available: available}
	}

	out := make(Regions)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("report: read region row: %w", err)
		}
		code := strings.TrimSpace(rec[codeIdx])
		if code == "" {
			continue
		}
		out[code] = strings.TrimSpace(rec[regionIdx])
	}
}
