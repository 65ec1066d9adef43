package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// ReadCSV parses a consumption export with a header row. The timestamp
// column is required; gross, net, shared and injection are optional and an
// empty cell means "not reported". Timestamps are RFC 3339.
func ReadCSV(r io.Reader) ([]domain.ConsumptionSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.Invalidf("empty csv")
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "malformed csv header", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsCol, ok := columns["timestamp"]
	if !ok {
		return nil, domain.Invalidf("csv header has no timestamp column")
	}

	var samples []domain.ConsumptionSample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeInvalid, fmt.Sprintf("malformed csv line %d", line), err)
		}

		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[tsCol]))
		if err != nil {
			return nil, domain.Invalidf("line %d: invalid timestamp %q", line, record[tsCol])
		}
		sample := domain.ConsumptionSample{Timestamp: ts.UTC()}
		for name, target := range map[string]**domain.Decimal{
			"gross":     &sample.Gross,
			"net":       &sample.Net,
			"shared":    &sample.Shared,
			"injection": &sample.Injection,
		} {
			col, ok := columns[name]
			if !ok || col >= len(record) || strings.TrimSpace(record[col]) == "" {
				continue
			}
			value, err := domain.NewDecimal(strings.TrimSpace(record[col]))
			if err != nil {
				return nil, domain.Invalidf("line %d: %s: %v", line, name, err)
			}
			*target = &value
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
