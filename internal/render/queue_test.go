package render_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/render"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeStore is an in-memory render job table
type fakeStore struct {
	store.Store

	missing []string
	jobs    map[string]*schema.RenderJob
}

func newFakeStore(pendingTokens ...string) *fakeStore {
	jobs := make(map[string]*schema.RenderJob)
	for _, tokenID := range pendingTokens {
		jobs[tokenID] = &schema.RenderJob{TokenID: tokenID, Status: schema.RenderJobStatusPending}
	}
	return &fakeStore{jobs: jobs}
}

func (s *fakeStore) TokenIDsWithoutRenderJob(ctx context.Context) ([]string, error) {
	var ids []string
	for _, tokenID := range s.missing {
		if _, ok := s.jobs[tokenID]; !ok {
			ids = append(ids, tokenID)
		}
	}
	return ids, nil
}

func (s *fakeStore) EnqueueRenderJobs(ctx context.Context, tokenIDs []string) (int, error) {
	created := 0
	for _, tokenID := range tokenIDs {
		if _, ok := s.jobs[tokenID]; ok {
			continue
		}
		s.jobs[tokenID] = &schema.RenderJob{TokenID: tokenID, Status: schema.RenderJobStatusPending}
		created++
	}
	return created, nil
}

func (s *fakeStore) ListPendingRenderJobs(ctx context.Context, limit int) ([]schema.RenderJob, error) {
	var pending []schema.RenderJob
	for _, job := range s.jobs {
		if job.Status != schema.RenderJobStatusPending {
			continue
		}
		pending = append(pending, *job)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeStore) CountPendingRenderJobs(ctx context.Context) (int64, error) {
	var count int64
	for _, job := range s.jobs {
		if job.Status == schema.RenderJobStatusPending {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) MarkRenderJobGenerating(ctx context.Context, tokenID string) error {
	s.jobs[tokenID].Status = schema.RenderJobStatusGenerating
	return nil
}

func (s *fakeStore) MarkRenderJobCompleted(ctx context.Context, tokenID string, filePath string, generatedAt time.Time) error {
	job := s.jobs[tokenID]
	job.Status = schema.RenderJobStatusCompleted
	job.FilePath = &filePath
	job.GeneratedAt = &generatedAt
	return nil
}

func (s *fakeStore) MarkRenderJobFailed(ctx context.Context, tokenID string, errMsg string) error {
	job := s.jobs[tokenID]
	job.Status = schema.RenderJobStatusFailed
	job.Error = &errMsg
	return nil
}

// fakeCache serves canned token content
type fakeCache struct {
	records map[string]*domain.TokenContent
}

func (c *fakeCache) GetOrFetch(ctx context.Context, tokenID string) (*domain.TokenContent, error) {
	record, ok := c.records[tokenID]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return record, nil
}

// fakeRenderer renders to a predictable path and can be told to fail
type fakeRenderer struct {
	failWith error
	calls    int
}

func (r *fakeRenderer) Render(ctx context.Context, content string, contentType string, meta render.Metadata) (string, error) {
	r.calls++
	if r.failWith != nil {
		return "", r.failWith
	}
	return "/previews/" + meta.Name + ".png", nil
}

func tokenRecord(tokenID, name string) *domain.TokenContent {
	return &domain.TokenContent{
		TokenID:     tokenID,
		Author:      "0xalice",
		Name:        name,
		ContentType: "image/svg+xml",
		Content:     "<svg xmlns=\"http://www.w3.org/2000/svg\"/>",
	}
}

func newTestQueue(st *fakeStore, cache *fakeCache, renderer render.Renderer) render.Queue {
	return render.NewQueue(st, cache, renderer, render.Config{
		BatchSize:  5,
		BatchDelay: time.Millisecond,
	}, adapter.NewClock())
}

func TestEnqueueMissing_IsIdempotent(t *testing.T) {
	st := newFakeStore()
	st.missing = []string{"1", "2"}
	q := newTestQueue(st, &fakeCache{}, &fakeRenderer{})

	created, err := q.EnqueueMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = q.EnqueueMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, st.jobs, 2)
}

func TestProcessQueue_CompletesJob(t *testing.T) {
	st := newFakeStore("1")
	cache := &fakeCache{records: map[string]*domain.TokenContent{"1": tokenRecord("1", "orbit")}}
	q := newTestQueue(st, cache, &fakeRenderer{})

	result, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	job := st.jobs["1"]
	assert.Equal(t, schema.RenderJobStatusCompleted, job.Status)
	require.NotNil(t, job.FilePath)
	assert.Equal(t, "/previews/orbit.png", *job.FilePath)
	require.NotNil(t, job.GeneratedAt)
	assert.Nil(t, job.Error)
}

func TestProcessQueue_FailsJobOnRenderError(t *testing.T) {
	st := newFakeStore("1")
	cache := &fakeCache{records: map[string]*domain.TokenContent{"1": tokenRecord("1", "orbit")}}
	renderer := &fakeRenderer{failWith: errors.New("malformed svg")}
	q := newTestQueue(st, cache, renderer)

	result, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	job := st.jobs["1"]
	assert.Equal(t, schema.RenderJobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "malformed svg", *job.Error)
	assert.Nil(t, job.FilePath)
}

func TestProcessQueue_FailsJobWhenContentMissing(t *testing.T) {
	st := newFakeStore("1")
	q := newTestQueue(st, &fakeCache{}, &fakeRenderer{})

	result, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	job := st.jobs["1"]
	assert.Equal(t, schema.RenderJobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "failed to load token content")
}

func TestProcessQueue_DrainsAcrossBatches(t *testing.T) {
	tokens := []string{"1", "2", "3", "4", "5", "6", "7"}
	st := newFakeStore(tokens...)
	records := make(map[string]*domain.TokenContent, len(tokens))
	for _, tokenID := range tokens {
		records[tokenID] = tokenRecord(tokenID, "art-"+tokenID)
	}
	renderer := &fakeRenderer{}
	q := newTestQueue(st, &fakeCache{records: records}, renderer)

	result, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)

	// Seven jobs drain in two batches of five
	assert.Equal(t, 7, result.Processed)
	assert.Equal(t, 7, renderer.calls)
	for _, tokenID := range tokens {
		assert.Equal(t, schema.RenderJobStatusCompleted, st.jobs[tokenID].Status)
	}
}

// blockingRenderer signals entry and blocks until released
type blockingRenderer struct {
	entered chan struct{}
	gate    chan struct{}
}

func (r *blockingRenderer) Render(ctx context.Context, content string, contentType string, meta render.Metadata) (string, error) {
	r.entered <- struct{}{}
	<-r.gate
	return "/previews/" + meta.Name + ".png", nil
}

func TestProcessQueue_SingleFlight(t *testing.T) {
	st := newFakeStore("1")
	cache := &fakeCache{records: map[string]*domain.TokenContent{"1": tokenRecord("1", "orbit")}}
	renderer := &blockingRenderer{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	q := newTestQueue(st, cache, renderer)

	done := make(chan *render.Result, 1)
	go func() {
		result, err := q.ProcessQueue(context.Background())
		assert.NoError(t, err)
		done <- result
	}()

	// Wait until the first call is mid-render, then the second call must
	// bail out
	<-renderer.entered
	skipped, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, skipped.Processed)
	assert.Equal(t, "already processing", skipped.Reason)

	close(renderer.gate)
	first := <-done
	assert.Equal(t, 1, first.Processed)
}
