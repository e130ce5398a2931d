package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/fxgateway/internal/client"
	"github.com/makeasinger/fxgateway/internal/config"
	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/model"
	"github.com/makeasinger/fxgateway/internal/store"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *fakeStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	s.keys = append(s.keys, key)
	if s.err != nil {
		return "", s.err
	}
	return "https://media.example.com/" + key, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []*model.Task
}

func (n *recordingNotifier) TaskFinished(task *model.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
}

type workerFixture struct {
	store    *store.MemoryStore
	storage  *fakeStorage
	notifier *recordingNotifier
	worker   *EffectWorker
}

func newWorkerFixture(t *testing.T, vendorURL, apiKey string, withStorage bool) *workerFixture {
	t.Helper()

	f := &workerFixture{
		store:    store.NewMemoryStore(),
		storage:  &fakeStorage{},
		notifier: &recordingNotifier{},
	}
	gen := client.NewGenerationClient(&config.VendorConfig{
		APIKey:     apiKey,
		BaseURL:    vendorURL,
		AuthScheme: "Key",
		Timeout:    5,
		MaxMediaMB: 1,
	})

	var storage client.StorageClient
	if withStorage {
		storage = f.storage
	}
	f.worker = NewEffectWorker(f.store, effect.DefaultRegistry(), gen, storage, f.notifier)
	return f
}

func (f *workerFixture) run(t *testing.T, effectName string, params map[string]string) *model.Task {
	t.Helper()

	ctx := context.Background()
	id := "task-" + effectName
	require.NoError(t, f.store.Create(ctx, &model.Task{
		ID:        id,
		Effect:    effectName,
		Status:    model.TaskStatusPending,
		CreatedAt: time.Now(),
		Retention: time.Hour,
	}))

	f.worker.Process(ctx, &model.TaskJob{TaskID: id, Effect: effectName, Params: params})

	task, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	return task
}

var animeParams = map[string]string{"imageUrl": "https://example.com/a.jpg", "style": "ghibli", "strength": "0.75"}

func TestProcess_JSONResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fal-ai/flux/dev/image-to-image", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/a.jpg", body["image_url"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"images":[{"url":"https://cdn/x.jpg"}]}`))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", true)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, "https://cdn/x.jpg", task.Result)
	assert.NotNil(t, task.CompletedAt)
	require.Len(t, f.notifier.tasks, 1)
	assert.Equal(t, model.TaskStatusSuccess, f.notifier.tasks[0].Status)
}

func TestProcess_JSONFallbackPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"image":{"url":"https://cdn/fallback.png"}}`))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, "https://cdn/fallback.png", task.Result)
}

func TestProcess_JSONMissingResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "missing result URL (images.0.url)")
	assert.Empty(t, task.Result)
}

func TestProcess_VendorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "503")
	assert.Contains(t, task.Error, "rate limited")
	require.Len(t, f.notifier.tasks, 1)
}

func TestProcess_BinaryUploaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", true)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, "https://media.example.com/effects/anime-filter/task-anime-filter.png", task.Result)
	assert.Equal(t, []string{"effects/anime-filter/task-anime-filter.png"}, f.storage.keys)
}

func TestProcess_BinaryUploadFailureInlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", true)
	f.storage.err = errors.New("bucket unavailable")
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.True(t, strings.HasPrefix(task.Result, "data:image/png;base64,"), task.Result)
}

func TestProcess_BinaryWithoutStorageInlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.True(t, strings.HasPrefix(task.Result, "data:image/png;base64,"))
	assert.Empty(t, f.storage.keys)
}

func TestProcess_UnexpectedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, `unexpected vendor content type "text/html"`)
	assert.Contains(t, task.Error, "maintenance")
}

func TestProcess_NotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "", false)
	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "not configured")
	assert.False(t, called)
}

func TestProcess_InlinesSources(t *testing.T) {
	var vendorBody map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/media/face.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes)
	})
	mux.HandleFunc("/media/target.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	mux.HandleFunc("/fal-ai/face-swap", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&vendorBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"image":{"url":"https://cdn/swapped.jpg"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "face-swap", map[string]string{
		"faceImageUrl":   srv.URL + "/media/face.png",
		"targetImageUrl": srv.URL + "/media/target.png",
		"quality":        "hd",
	})

	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, "https://cdn/swapped.jpg", task.Result)
	assert.True(t, strings.HasPrefix(vendorBody["swap_image_url"].(string), "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(vendorBody["base_image_url"].(string), "data:image/png;base64,"))
	assert.Equal(t, true, vendorBody["enhance"])
}

func TestProcess_SourceFetchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/missing.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	task := f.run(t, "celebrity-selfie", map[string]string{
		"imageUrl":  srv.URL + "/media/missing.png",
		"scene":     "cafe",
		"celebrity": "a famous actor",
	})

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "imageUrl")
	assert.Contains(t, task.Error, "404")
}

func TestProcess_LateOutcomeIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"images":[{"url":"https://cdn/late.jpg"}]}`))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Task{
		ID: "t1", Effect: "anime-filter", Status: model.TaskStatusPending, CreatedAt: time.Now(), Retention: time.Hour,
	}))
	_, err := f.store.Fail(ctx, "t1", "cancelled")
	require.NoError(t, err)

	f.worker.Process(ctx, &model.TaskJob{TaskID: "t1", Effect: "anime-filter", Params: animeParams})

	task, err := f.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, "cancelled", task.Error)
	assert.Empty(t, f.notifier.tasks)
}

func TestProcessTask_DecodesAsynqPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"images":[{"url":"https://cdn/q.jpg"}]}`))
	}))
	defer srv.Close()

	f := newWorkerFixture(t, srv.URL, "k", false)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Task{
		ID: "q1", Effect: "anime-filter", Status: model.TaskStatusPending, CreatedAt: time.Now(), Retention: time.Hour,
	}))

	task, err := NewEffectTask(&model.TaskJob{TaskID: "q1", Effect: "anime-filter", Params: animeParams})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeEffect, task.Type())
	require.NoError(t, f.worker.ProcessTask(ctx, task))

	stored, err := f.store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/q.jpg", stored.Result)

	err = f.worker.ProcessTask(ctx, asynq.NewTask(TaskTypeEffect, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, string, interface{}) (*client.GenerationResponse, error) {
	panic("boom")
}

func (panicGenerator) FetchMedia(context.Context, string) (*client.Media, error) {
	panic("boom")
}

func (panicGenerator) IsConfigured() bool { return true }

func TestProcess_RecoversPanic(t *testing.T) {
	f := newWorkerFixture(t, "http://127.0.0.1:0", "k", false)
	f.worker = NewEffectWorker(f.store, effect.DefaultRegistry(), panicGenerator{}, nil, f.notifier)

	task := f.run(t, "anime-filter", animeParams)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "internal error")
	assert.Contains(t, task.Error, "boom")
	assert.Empty(t, task.Result)
	require.Len(t, f.notifier.tasks, 1)
	assert.Equal(t, model.TaskStatusFailed, f.notifier.tasks[0].Status)
}
