package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayRef(s string) *time.Time {
	t := day(s)
	return &t
}

func config(id int64, start string, end *time.Time) MeterConfiguration {
	return MeterConfiguration{ID: id, EAN: "541448000000000001", StartDate: day(start), EndDate: end, Status: MeterStatusActive}
}

func TestClassify(t *testing.T) {
	t.Run("single open configuration is active", func(t *testing.T) {
		rows := []MeterConfiguration{config(1, "2024-01-01", nil)}

		tl := Classify(rows, day("2024-06-01"))

		require.NotNil(t, tl.Active)
		assert.Equal(t, int64(1), tl.Active.ID)
		assert.Empty(t, tl.History)
		assert.Empty(t, tl.Future)
	})

	t.Run("partitions past current and future", func(t *testing.T) {
		rows := []MeterConfiguration{
			config(3, "2024-09-01", nil),
			config(2, "2024-03-01", nil),
			config(1, "2024-01-01", dayRef("2024-02-29")),
		}

		tl := Classify(rows, day("2024-06-01"))

		require.NotNil(t, tl.Active)
		assert.Equal(t, int64(2), tl.Active.ID)
		require.Len(t, tl.History, 1)
		assert.Equal(t, int64(1), tl.History[0].ID)
		require.Len(t, tl.Future, 1)
		assert.Equal(t, int64(3), tl.Future[0].ID)
	})

	t.Run("overlapping candidates demote all but the first", func(t *testing.T) {
		rows := NewestFirst([]MeterConfiguration{
			config(1, "2024-01-01", nil),
			config(2, "2024-04-01", nil),
			config(3, "2024-02-01", nil),
		})

		tl := Classify(rows, day("2024-06-01"))

		require.NotNil(t, tl.Active)
		assert.Equal(t, int64(2), tl.Active.ID)
		ids := []int64{tl.History[0].ID, tl.History[1].ID}
		assert.Equal(t, []int64{3, 1}, ids)
	})

	t.Run("end date equal to reference is still current", func(t *testing.T) {
		rows := []MeterConfiguration{config(1, "2024-01-01", dayRef("2024-06-01"))}

		tl := Classify(rows, day("2024-06-01"))

		require.NotNil(t, tl.Active)
	})

	t.Run("start date equal to reference is current", func(t *testing.T) {
		rows := []MeterConfiguration{config(1, "2024-06-01", nil)}

		tl := Classify(rows, time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC))

		require.NotNil(t, tl.Active)
		assert.Empty(t, tl.Future)
	})

	t.Run("empty input", func(t *testing.T) {
		tl := Classify([]MeterConfiguration{}, day("2024-06-01"))

		assert.Nil(t, tl.Active)
		assert.NotNil(t, tl.History)
		assert.NotNil(t, tl.Future)
	})

	t.Run("every record lands in exactly one bucket", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		base := day("2024-01-01")
		for iter := 0; iter < 200; iter++ {
			n := rng.Intn(12)
			rows := make([]MeterConfiguration, n)
			for i := range rows {
				start := base.AddDate(0, 0, rng.Intn(365))
				var end *time.Time
				if rng.Intn(2) == 0 {
					e := start.AddDate(0, 0, rng.Intn(120))
					end = &e
				}
				rows[i] = MeterConfiguration{ID: int64(i + 1), StartDate: start, EndDate: end}
			}
			ref := base.AddDate(0, 0, rng.Intn(400))

			tl := Classify(rows, ref)

			seen := map[int64]int{}
			if tl.Active != nil {
				seen[tl.Active.ID]++
			}
			for _, r := range tl.History {
				seen[r.ID]++
			}
			for _, r := range tl.Future {
				seen[r.ID]++
			}
			require.Len(t, seen, n)
			for id, count := range seen {
				require.Equal(t, 1, count, "record %d classified %d times", id, count)
			}
		}
	})
}

func TestSummarizeKeys(t *testing.T) {
	keys := []SharingOperationKey{
		{ID: 1, KeyID: 10, StartDate: day("2024-01-01"), EndDate: dayRef("2024-03-01"), Status: KeyApproved},
		{ID: 2, KeyID: 11, StartDate: day("2024-03-01"), Status: KeyApproved},
		{ID: 3, KeyID: 12, StartDate: day("2024-05-01"), Status: KeyPending},
		{ID: 4, KeyID: 13, StartDate: day("2024-04-01"), EndDate: dayRef("2024-04-02"), Status: KeyRejected},
		{ID: 5, KeyID: 14, StartDate: day("2024-04-15"), Status: KeyPending},
	}

	summary := SummarizeKeys(keys)

	require.NotNil(t, summary.Active)
	assert.Equal(t, int64(11), summary.Active.KeyID)
	require.NotNil(t, summary.Pending)
	assert.Equal(t, int64(12), summary.Pending.KeyID)

	var history []int64
	for _, k := range summary.History {
		history = append(history, k.ID)
	}
	assert.Equal(t, []int64{5, 4, 1}, history)
}

func TestNewestFirstDoesNotMutateInput(t *testing.T) {
	rows := []MeterConfiguration{config(1, "2024-01-01", nil), config(2, "2024-02-01", nil)}

	sorted := NewestFirst(rows)

	assert.Equal(t, int64(2), sorted[0].ID)
	assert.Equal(t, int64(1), rows[0].ID)
}

func TestSummarizeKeysPrefersOpenApproved(t *testing.T) {
	keys := []SharingOperationKey{
		{ID: 1, KeyID: 10, StartDate: day("2024-03-01"), EndDate: dayRef("2024-04-01"), Status: KeyApproved},
		{ID: 2, KeyID: 11, StartDate: day("2024-02-15"), Status: KeyApproved},
	}

	summary := SummarizeKeys(keys)

	require.NotNil(t, summary.Active)
	assert.Equal(t, int64(11), summary.Active.KeyID)
	require.Len(t, summary.History, 1)
	assert.Equal(t, int64(1), summary.History[0].ID)
}

func TestSummarizeKeysSkipsClosedPending(t *testing.T) {
	keys := []SharingOperationKey{
		{ID: 1, KeyID: 10, StartDate: day("2024-01-01"), Status: KeyApproved},
		{ID: 2, KeyID: 11, StartDate: day("2024-02-15"), EndDate: dayRef("2024-02-20"), Status: KeyPending},
	}

	summary := SummarizeKeys(keys)

	require.NotNil(t, summary.Active)
	assert.Equal(t, int64(10), summary.Active.KeyID)
	assert.Nil(t, summary.Pending)
	require.Len(t, summary.History, 1)
	assert.Equal(t, int64(2), summary.History[0].ID)
}
