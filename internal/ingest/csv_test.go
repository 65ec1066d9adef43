package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"timestamp,gross,net,shared,injection",
		"2024-05-01T10:00:00Z,1.25,,0.5,",
		"2024-05-01T12:15:00+02:00,,2,,0.125",
	}, "\n")

	samples, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "1.25", samples[0].Gross.String())
	assert.Nil(t, samples[0].Net)
	assert.Equal(t, "0.5", samples[0].Shared.String())
	assert.Nil(t, samples[0].Injection)

	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), samples[1].Timestamp)
	assert.Nil(t, samples[1].Gross)
	assert.Equal(t, "0.125", samples[1].Injection.String())
}

func TestReadCSVColumnsInAnyOrder(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader("Gross, Timestamp\n3,2024-01-01T00:00:00Z\n"))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "3", samples[0].Gross.String())
}

func TestReadCSVRejects(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no timestamp":   "gross,net\n1,2\n",
		"bad timestamp":  "timestamp\nyesterday\n",
		"bad decimal":    "timestamp,gross\n2024-01-01T00:00:00Z,abc\n",
		"ragged columns": "timestamp,gross\n2024-01-01T00:00:00Z\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(input))
			assert.Equal(t, domain.ErrCodeInvalid, domain.CodeOf(err))
		})
	}
}
