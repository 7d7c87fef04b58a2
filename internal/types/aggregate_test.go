package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogramCountsRoundTrip(t *testing.T) {
	var hc HistogramCounts
	hc[0] = 10
	hc[127] = 3
	hc[255] = 999

	data, err := json.Marshal(hc)
	require.NoError(t, err)

	var decoded HistogramCounts
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, hc, decoded)
}

func TestHistogramCountsSparseInput(t *testing.T) {
	var hc HistogramCounts
	require.NoError(t, json.Unmarshal([]byte(`{"0": 5, "42": 7}`), &hc))
	assert.Equal(t, int64(5), hc[0])
	assert.Equal(t, int64(7), hc[42])
	assert.Equal(t, int64(0), hc[1])
	assert.Equal(t, int64(0), hc[255])
}

func TestHistogramCountsRejectsBadBuckets(t *testing.T) {
	cases := []string{
		`{"256": 1}`,
		`{"-1": 1}`,
		`{"ff": 1}`,
	}
	for _, input := range cases {
		var hc HistogramCounts
		assert.Error(t, json.Unmarshal([]byte(input), &hc), "input %s", input)
	}
}

func TestHexBytes(t *testing.T) {
	h := HexBytes{0x4d, 0x5a, 0x90, 0x00}
	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"4d5a9000"`, string(data))

	var decoded HexBytes
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, h, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"not hex"`), &decoded))
}

func TestWireTimeFormat(t *testing.T) {
	w := NewWireTime(time.Date(2019, 3, 7, 12, 34, 56, 0, time.UTC))
	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Equal(t, `"2019-03-07 12:34:56 UTC"`, string(data))
}

func TestWireTimeParsesBothLayouts(t *testing.T) {
	want := time.Date(2019, 3, 7, 12, 34, 56, 0, time.UTC)
	for _, input := range []string{
		`"2019-03-07 12:34:56 UTC"`,
		`"2019-03-07T12:34:56Z"`,
		`"2019-03-07 12:34:56"`,
	} {
		var w WireTime
		require.NoError(t, json.Unmarshal([]byte(input), &w), "input %s", input)
		assert.True(t, w.Time.Equal(want), "input %s parsed as %v", input, w.Time)
	}

	var w WireTime
	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &w))
}

// An absent collection stays nil after decoding while an explicitly empty
// one does not. The two mean different things to the ingestion branches.
func TestAggregateAbsentVersusEmpty(t *testing.T) {
	var absent SampleAggregate
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.Nil(t, absent.Tags)
	assert.Nil(t, absent.Sections)
	assert.Nil(t, absent.Size)

	var empty SampleAggregate
	require.NoError(t, json.Unmarshal([]byte(`{"tags": [], "sections": []}`), &empty))
	assert.NotNil(t, empty.Tags)
	assert.Len(t, empty.Tags, 0)
	assert.NotNil(t, empty.Sections)
}

func TestAggregateOmitsUnsetFields(t *testing.T) {
	hash := "aa"
	agg := SampleAggregate{HashSHA256: &hash}
	data, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash_sha256": "aa"}`, string(data))
}

func TestSubmissionCarriesTaskID(t *testing.T) {
	var sub Submission
	require.NoError(t, json.Unmarshal([]byte(`{"hash_sha256": "aa", "task_id": 7}`), &sub))
	require.NotNil(t, sub.TaskID)
	assert.Equal(t, int64(7), *sub.TaskID)
	require.NotNil(t, sub.HashSHA256)
	assert.Equal(t, "aa", *sub.HashSHA256)
}
