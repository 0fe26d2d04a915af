package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var headerNames = map[string]struct{}{
	"product_id": {},
	"product":    {},
	"sku":        {},
	"id":         {},
}

// ParseProductList reads a bulk upload: CSV whose first column holds product
// identifiers, or a plain list with one identifier per line. A header row is
// skipped, as are blank rows.
func ParseProductList(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var out []string
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse product list: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
		if first {
			first = false
			if _, ok := headerNames[strings.ToLower(value)]; ok {
				continue
			}
		}
		if value != "" {
			out = append(out, value)
		}
	}
	return out, nil
}
