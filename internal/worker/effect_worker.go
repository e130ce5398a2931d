package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/tidwall/gjson"

	"github.com/makeasinger/fxgateway/internal/client"
	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/model"
	"github.com/makeasinger/fxgateway/internal/notify"
	"github.com/makeasinger/fxgateway/internal/store"
)

const unexpectedBodyLimit = 200

// errNotConfigured is recorded when the vendor key is missing at processing time
var errNotConfigured = errors.New("generation vendor is not configured (missing API key)")

// Paths tried after the effect's own result path
var resultFallbackPaths = []string{"image.url", "images.0.url", "video.url", "output.0"}

// EffectWorker runs one task against the generation vendor and records its outcome
type EffectWorker struct {
	store     store.TaskStore
	registry  *effect.Registry
	generator client.Generator
	storage   client.StorageClient
	notifier  notify.Notifier
}

// NewEffectWorker creates a new effect worker. storage may be nil, in which case
// binary artifacts are returned inline as data URLs.
func NewEffectWorker(
	taskStore store.TaskStore,
	registry *effect.Registry,
	generator client.Generator,
	storage client.StorageClient,
	notifier notify.Notifier,
) *EffectWorker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &EffectWorker{
		store:     taskStore,
		registry:  registry,
		generator: generator,
		storage:   storage,
		notifier:  notifier,
	}
}

// ProcessTask handles effect tasks delivered by asynq
func (w *EffectWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job model.TaskJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	w.Process(ctx, &job)
	return nil
}

// Process executes the job and writes exactly one terminal state for it
func (w *EffectWorker) Process(ctx context.Context, job *model.TaskJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Task] %s panicked: %v", job.TaskID, r)
			w.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	log.Printf("[Task] %s started (%s)", job.TaskID, job.Effect)

	result, err := w.run(ctx, job)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "generation timed out: " + msg
		}
		log.Printf("[Task] %s failed: %s", job.TaskID, client.Truncate(msg, 500))
		w.fail(ctx, job, msg)
		return
	}

	log.Printf("[Task] %s succeeded", job.TaskID)
	w.complete(ctx, job, result)
}

func (w *EffectWorker) run(ctx context.Context, job *model.TaskJob) (string, error) {
	if w.generator == nil || !w.generator.IsConfigured() {
		return "", errNotConfigured
	}

	eff, err := w.registry.Get(job.Effect)
	if err != nil {
		return "", err
	}

	params := effect.Params(job.Params)
	sources := make(map[string]string, len(eff.Inputs))
	for _, in := range eff.Inputs {
		url := params.String(in.Name)
		if url == "" {
			continue
		}
		if !eff.InlineSources {
			sources[in.Name] = url
			continue
		}
		media, err := w.generator.FetchMedia(ctx, url)
		if err != nil {
			return "", fmt.Errorf("%s: %w", in.Name, err)
		}
		sources[in.Name] = media.DataURL()
	}

	resp, err := w.generator.Generate(ctx, eff.EndpointFor(params), eff.BuildPayload(params, sources))
	if err != nil {
		return "", err
	}

	return w.interpret(ctx, eff, job.TaskID, resp)
}

// interpret turns a successful vendor response into a result URL
func (w *EffectWorker) interpret(ctx context.Context, eff *effect.Effect, taskID string, resp *client.GenerationResponse) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(resp.ContentType, ";")[0]))

	switch {
	case client.IsMediaType(mediaType) || mediaType == "application/octet-stream":
		contentType := client.DetectContentType(mediaType, resp.Body)
		return w.storeArtifact(ctx, eff, taskID, contentType, resp.Body), nil

	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return extractResultURL(eff.ResultPath, resp.Body)

	default:
		return "", fmt.Errorf("unexpected vendor content type %q: %s",
			resp.ContentType, client.Truncate(string(resp.Body), unexpectedBodyLimit))
	}
}

// storeArtifact uploads a binary result, inlining it when storage is unavailable
func (w *EffectWorker) storeArtifact(ctx context.Context, eff *effect.Effect, taskID, contentType string, data []byte) string {
	if w.storage == nil {
		return client.EncodeDataURL(contentType, data)
	}

	key := fmt.Sprintf("effects/%s/%s%s", eff.Name, taskID, client.ExtensionFor(contentType))
	url, err := w.storage.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		log.Printf("[Storage] upload of %s failed, returning inline result: %v", key, err)
		return client.EncodeDataURL(contentType, data)
	}
	return url
}

func extractResultURL(path string, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("vendor returned invalid JSON: %s", client.Truncate(string(body), unexpectedBodyLimit))
	}

	paths := append([]string{path}, resultFallbackPaths...)
	for _, p := range paths {
		if p == "" {
			continue
		}
		r := gjson.GetBytes(body, p)
		if r.Type == gjson.String && r.String() != "" {
			return r.String(), nil
		}
	}
	return "", fmt.Errorf("vendor response missing result URL (%s)", path)
}

func (w *EffectWorker) complete(ctx context.Context, job *model.TaskJob, result string) {
	task, err := w.store.Complete(context.WithoutCancel(ctx), job.TaskID, result)
	w.settle(job, task, err)
}

func (w *EffectWorker) fail(ctx context.Context, job *model.TaskJob, errMsg string) {
	task, err := w.store.Fail(context.WithoutCancel(ctx), job.TaskID, errMsg)
	w.settle(job, task, err)
}

func (w *EffectWorker) settle(job *model.TaskJob, task *model.Task, err error) {
	switch {
	case errors.Is(err, store.ErrTaskFinalized):
		log.Printf("[Task] %s already finalized, ignoring late outcome", job.TaskID)
	case errors.Is(err, store.ErrTaskNotFound):
		log.Printf("[Task] %s expired before it finished", job.TaskID)
	case err != nil:
		log.Printf("[Task] %s: failed to record outcome: %v", job.TaskID, err)
	default:
		w.notifier.TaskFinished(task)
	}
}
