package video

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairopi/internal/domain"
	"kairopi/internal/providers/genai"
)

type fakeOperations struct {
	mu        sync.Mutex
	started   genai.VideoRequest
	startErr  error
	polls     []pollResult
	pollCalls int
	data      []byte
	mime      string
	dlErr     error
	dlURI     string
}

type pollResult struct {
	op  *genai.Operation
	err error
}

func (f *fakeOperations) StartVideo(ctx context.Context, req genai.VideoRequest) (*genai.Operation, error) {
	f.started = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &genai.Operation{Name: "models/veo/operations/op-1"}, nil
}

func (f *fakeOperations) GetOperation(ctx context.Context, name string) (*genai.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.pollCalls
	f.pollCalls++
	if i >= len(f.polls) {
		return &genai.Operation{Name: name}, nil
	}
	return f.polls[i].op, f.polls[i].err
}

func (f *fakeOperations) Download(ctx context.Context, uri string) ([]byte, string, error) {
	f.dlURI = uri
	return f.data, f.mime, f.dlErr
}

func doneWithVideo(uri string) *genai.Operation {
	return &genai.Operation{
		Name: "models/veo/operations/op-1",
		Done: true,
		Response: &genai.VideoResponse{GenerateVideoResponse: genai.GeneratedVideos{
			GeneratedSamples: []genai.VideoSample{{Video: genai.VideoFile{URI: uri}}},
		}},
	}
}

func newTestGenerator(f *fakeOperations, maxWait time.Duration) *GeminiGenerator {
	return NewGeminiGenerator(f, GeminiOptions{
		Model:        "veo-3.1-fast-generate-preview",
		PollInterval: time.Millisecond,
		MaxWait:      maxWait,
		Logger:       zerolog.Nop(),
	})
}

func TestGenerateHappyPath(t *testing.T) {
	f := &fakeOperations{
		polls: []pollResult{
			{op: &genai.Operation{Name: "models/veo/operations/op-1"}},
			{op: doneWithVideo("https://files.example.com/v.mp4")},
		},
		data: []byte("mp4"),
		mime: "application/octet-stream",
	}
	asset, err := newTestGenerator(f, time.Minute).Generate(context.Background(), GenerateRequest{
		JobID: "video-1", Prompt: "p", AspectRatio: "9:16",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), asset.Data)
	assert.Equal(t, "video/mp4", asset.Format)
	assert.Equal(t, "https://files.example.com/v.mp4", asset.SourceURI)
	assert.Equal(t, "https://files.example.com/v.mp4", f.dlURI)
	assert.Equal(t, 2, f.pollCalls)
	assert.Equal(t, genai.VideoRequest{Model: "veo-3.1-fast-generate-preview", Prompt: "p", AspectRatio: "9:16", Resolution: "720p"}, f.started)
}

func TestGenerateOperationError(t *testing.T) {
	f := &fakeOperations{polls: []pollResult{{op: &genai.Operation{Done: true, Error: &genai.OperationError{Code: 3, Message: "quota exceeded"}}}}}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, "quota exceeded", err.Error())
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.True(t, IsRenderError(err))
}

func TestGenerateOperationErrorWithoutMessage(t *testing.T) {
	f := &fakeOperations{polls: []pollResult{{op: &genai.Operation{Done: true, Error: &genai.OperationError{Code: 13}}}}}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	assert.EqualError(t, err, "An unknown error occurred during video generation.")
}

func TestGenerateMissingDownloadLink(t *testing.T) {
	f := &fakeOperations{polls: []pollResult{{op: &genai.Operation{Done: true, Response: &genai.VideoResponse{}}}}}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	assert.EqualError(t, err, "Video generation finished, but no download link was provided.")
}

func TestGenerateFilteredBySafety(t *testing.T) {
	op := &genai.Operation{Done: true, Response: &genai.VideoResponse{}}
	op.Response.GenerateVideoResponse.RAIMediaFilteredReasons = []string{"celebrity likeness"}
	f := &fakeOperations{polls: []pollResult{{op: op}}}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "celebrity likeness")
}

func TestGenerateStartFailure(t *testing.T) {
	f := &fakeOperations{startErr: errors.New("gemini status 403: denied")}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Zero(t, f.pollCalls)
}

func TestGenerateToleratesTransientPollErrors(t *testing.T) {
	f := &fakeOperations{
		polls: []pollResult{
			{err: errors.New("connection reset")},
			{err: errors.New("connection reset")},
			{op: doneWithVideo("https://files.example.com/v.mp4")},
		},
		data: []byte("mp4"),
	}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
}

func TestGenerateGivesUpAfterRepeatedPollErrors(t *testing.T) {
	boom := errors.New("connection reset")
	f := &fakeOperations{polls: []pollResult{{err: boom}, {err: boom}, {err: boom}}}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, maxPollErrors, f.pollCalls)
}

func TestGenerateStopsAtMaxWait(t *testing.T) {
	f := &fakeOperations{}
	g := NewGeminiGenerator(f, GeminiOptions{PollInterval: time.Millisecond, MaxWait: 20 * time.Millisecond, Logger: zerolog.Nop()})
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
	assert.Contains(t, err.Error(), "did not finish within 20ms")
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestGenerator(&fakeOperations{}, 0).Generate(ctx, GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsRenderError(err))
}

func TestGenerateDownloadFailure(t *testing.T) {
	f := &fakeOperations{
		polls: []pollResult{{op: doneWithVideo("https://files.example.com/v.mp4")}},
		dlErr: errors.New("download file status 404: gone"),
	}
	_, err := newTestGenerator(f, 0).Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download video")
}
