package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusProcessing, true},
		{JobStatusQueued, JobStatusError, true},
		{JobStatusQueued, JobStatusComplete, false},
		{JobStatusQueued, JobStatusQueued, false},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusComplete, true},
		{JobStatusProcessing, JobStatusError, true},
		{JobStatusProcessing, JobStatusQueued, false},
		{JobStatusComplete, JobStatusError, false},
		{JobStatusComplete, JobStatusProcessing, false},
		{JobStatusError, JobStatusComplete, false},
		{JobStatusError, JobStatusQueued, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusComplete, JobStatusError} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, JobStatus("").Valid())
	assert.False(t, JobStatus("failed").Valid())
}

func TestSourceStates(t *testing.T) {
	assert.Equal(t, []JobStatus{JobStatusQueued, JobStatusProcessing}, SourceStates(JobStatusProcessing))
	assert.Equal(t, []JobStatus{JobStatusProcessing}, SourceStates(JobStatusComplete))
	assert.Equal(t, []JobStatus{JobStatusQueued, JobStatusProcessing}, SourceStates(JobStatusError))
	assert.Empty(t, SourceStates(JobStatusQueued))
}

func TestJobRecordApplyKeepsFieldInvariants(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := NewQueuedRecord("video-1", created)

	rec.Apply(JobStatusProcessing, "", created.Add(time.Second))
	require.NotNil(t, rec.StartedAt)
	firstStart := *rec.StartedAt

	rec.Apply(JobStatusProcessing, "", created.Add(time.Minute))
	assert.Equal(t, firstStart, *rec.StartedAt, "redelivery keeps the first start time")

	rec.Apply(JobStatusComplete, "https://cdn.example.com/video-1.mp4", created.Add(2*time.Minute))
	assert.Equal(t, JobStatusComplete, rec.Status)
	assert.Equal(t, "https://cdn.example.com/video-1.mp4", rec.VideoURL)
	assert.Empty(t, rec.ErrorMessage)
	require.NotNil(t, rec.FinishedAt)
}

func TestJobRecordJSONOmitsAbsentFields(t *testing.T) {
	rec := NewQueuedRecord("video-1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "queued", decoded["status"])
	assert.Equal(t, "video-1", decoded["jobId"])
	assert.Equal(t, "2024-05-01T10:00:00Z", decoded["createdAt"])
	for _, key := range []string{"videoUrl", "errorMessage", "startedAt", "finishedAt"} {
		_, ok := decoded[key]
		assert.False(t, ok, "%s should be omitted", key)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	rec := NewQueuedRecord("video-1", time.Now())
	rec.Apply(JobStatusProcessing, "", time.Now())
	cp := rec.Clone()
	*cp.StartedAt = cp.StartedAt.Add(time.Hour)
	assert.NotEqual(t, *rec.StartedAt, *cp.StartedAt)
}

func TestCardDataCompactDropsImagePayloads(t *testing.T) {
	card := CardData{Elements: []CardElement{
		{ID: "a", Type: ElementTypeImage, Content: "data:image/png;base64,AAAA", Prompt: "a fox", Foil: "gold"},
		{ID: "b", Type: ElementTypeText, Content: "xoxo"},
	}}
	out := card.Compact()
	assert.Empty(t, out.Elements[0].Content)
	assert.Equal(t, "a fox", out.Elements[0].Prompt)
	assert.Equal(t, "xoxo", out.Elements[1].Content)
	assert.Equal(t, "data:image/png;base64,AAAA", card.Elements[0].Content, "original untouched")

	assert.NotNil(t, CardData{}.Compact().Elements)
}
