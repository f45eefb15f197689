package videojob

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairopi/internal/adapter/repo"
	"kairopi/internal/domain"
)

type capturePublisher struct {
	published []domain.JobRequest
	err       error
	onPublish func(domain.JobRequest)
}

func (p *capturePublisher) Publish(ctx context.Context, req domain.JobRequest) error {
	if p.onPublish != nil {
		p.onPublish(req)
	}
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, req)
	return nil
}

type failingCreateRepo struct {
	*repo.JobRepositoryMemory
}

func (failingCreateRepo) Create(ctx context.Context, rec *domain.JobRecord) error {
	return errors.New("store down")
}

func fixedService(r domain.JobRepository, p domain.JobPublisher) *Service {
	s := NewService(r, p, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestNewJobIDFormat(t *testing.T) {
	id := NewJobID(time.UnixMilli(1714557600000))
	assert.Regexp(t, regexp.MustCompile(`^video-1714557600000-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewJobID(time.UnixMilli(1714557600000)))
}

func TestSubmitCreatesRecordBeforePublishing(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	pub := &capturePublisher{}
	pub.onPublish = func(req domain.JobRequest) {
		rec, err := jobs.Get(context.Background(), req.JobID)
		require.NoError(t, err, "record must exist when the request is published")
		assert.Equal(t, domain.JobStatusQueued, rec.Status)
	}
	svc := fixedService(jobs, pub)

	card := domain.CardData{
		Message:  "Hi",
		Canvas:   domain.Canvas{AspectRatio: "1:1"},
		Elements: []domain.CardElement{{Type: domain.ElementTypeImage, Content: "data:image/png;base64,AAAA", Prompt: "fox"}},
	}
	jobID, err := svc.Submit(context.Background(), card, "a box opens")
	require.NoError(t, err)
	assert.Regexp(t, `^video-\d+-[0-9a-f]{8}$`, jobID)

	require.Len(t, pub.published, 1)
	req := pub.published[0]
	assert.Equal(t, jobID, req.JobID)
	assert.Equal(t, "a box opens", req.Prompt)
	assert.Equal(t, "fox", req.CardData.Elements[0].Prompt)
	assert.Empty(t, req.CardData.Elements[0].Content, "inline image data is not queued")

	rec, err := svc.Status(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, rec.Status)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rec.CreatedAt)
}

func TestSubmitPublishesJSONRoundTrippableRequest(t *testing.T) {
	pub := &capturePublisher{}
	_, err := fixedService(repo.NewMemoryJobRepository(), pub).Submit(context.Background(), domain.CardData{Message: "Hi"}, "p")
	require.NoError(t, err)

	raw, err := json.Marshal(pub.published[0])
	require.NoError(t, err)
	var decoded domain.JobRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, pub.published[0].JobID, decoded.JobID)
	assert.Equal(t, "2024-05-01T10:00:00Z", decoded.SubmittedAt.Format(time.RFC3339))
}

func TestSubmitStoreFailurePublishesNothing(t *testing.T) {
	pub := &capturePublisher{}
	_, err := fixedService(failingCreateRepo{repo.NewMemoryJobRepository()}, pub).Submit(context.Background(), domain.CardData{}, "p")
	require.Error(t, err)
	assert.Empty(t, pub.published)
}

func TestSubmitPublishFailureMarksRecordFailed(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	var published string
	pub := &capturePublisher{err: errors.New("topic not found")}
	pub.onPublish = func(req domain.JobRequest) { published = req.JobID }

	_, err := fixedService(jobs, pub).Submit(context.Background(), domain.CardData{}, "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic not found")

	rec, err := jobs.Get(context.Background(), published)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, rec.Status)
	assert.Equal(t, EnqueueFailedMessage, rec.ErrorMessage)
	assert.NotNil(t, rec.FinishedAt)
}

func TestStatusUnknownJob(t *testing.T) {
	_, err := fixedService(repo.NewMemoryJobRepository(), &capturePublisher{}).Status(context.Background(), "video-nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
