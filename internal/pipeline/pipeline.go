package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/swifty/pixpro-worker/internal/domain"
	"github.com/swifty/pixpro-worker/internal/fault"
	"github.com/swifty/pixpro-worker/internal/observability"
)

const resultFolder = "swifty-processed-images"
const resultFormat = "jpg"

// Pipeline runs the strictly sequential fetch → transform → store stages
// for a single job, under the deadline-bounded executor.
type Pipeline struct {
	Fetcher     domain.ImageFetcher
	Transformer domain.ImageTransformer
	Store       domain.ImageStore
	Policy      domain.RetryPolicy
	Logger      *slog.Logger
}

// Run executes one attempt of the pipeline. The returned PhaseTimings holds
// every phase that completed, even on failure, so the caller can derive the
// failure phase; a failing phase records no timing.
func (p *Pipeline) Run(ctx context.Context, job domain.ImageJob) (domain.PipelineResult, domain.PhaseTimings, error) {
	timings := domain.PhaseTimings{}

	buf, err := p.fetch(ctx, job, timings)
	if err != nil {
		return domain.PipelineResult{}, timings, err
	}

	processed, err := p.transform(ctx, job, buf, timings)
	if err != nil {
		return domain.PipelineResult{}, timings, err
	}

	result, err := p.store(ctx, job, processed, timings)
	if err != nil {
		return domain.PipelineResult{}, timings, err
	}

	return result, timings, nil
}

func (p *Pipeline) fetch(ctx context.Context, job domain.ImageJob, timings domain.PhaseTimings) ([]byte, error) {
	start := time.Now()
	buf, err := p.Fetcher.Fetch(ctx, job.OriginalImageURL)
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.fetch imageId=%s: %w", job.ImageID, err)
	}
	timings[domain.PhaseFetch] = time.Since(start).Milliseconds()
	return buf, nil
}

// transform wraps the AI backend call in the inner retry loop: on a
// retryable fault it sleeps 2^k seconds (k = 1-based attempt number) up
// to Policy.TransformInnerRetryCap, then rethrows the last error. A
// non-retryable fault rethrows immediately without consuming the cap. A
// backend that returns no bytes and no error is a pass-through: the
// original buffer is forwarded untouched, degraded but not failed.
func (p *Pipeline) transform(ctx context.Context, job domain.ImageJob, original []byte, timings domain.PhaseTimings) ([]byte, error) {
	start := time.Now()
	var out []byte

	attempt := 0
	op := func() error {
		attempt++
		v, err := p.Transformer.Transform(ctx, original, job.Style)
		if err == nil {
			out = v
			return nil
		}

		verdict := fault.Classify(domain.PhaseTransform, err)
		if !verdict.Retryable {
			return backoff.Permanent(err)
		}
		if attempt > p.Policy.TransformInnerRetryCap {
			return backoff.Permanent(err)
		}
		p.logger().Warn("transform attempt failed, retrying",
			slog.String("imageId", job.ImageID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(&innerRetryBackOff{}, ctx))
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.transform imageId=%s attempts=%d: %w", job.ImageID, attempt, err)
	}
	timings[domain.PhaseTransform] = time.Since(start).Milliseconds()

	if len(out) == 0 {
		p.logger().Info("transform backend returned no image, passing through original",
			slog.String("imageId", job.ImageID))
		return original, nil
	}
	return out, nil
}

func (p *Pipeline) store(ctx context.Context, job domain.ImageJob, processed []byte, timings domain.PhaseTimings) (domain.PipelineResult, error) {
	start := time.Now()
	obj := domain.StoreObject{
		PublicID: fmt.Sprintf("processed_%s_%d", job.ImageID, time.Now().UnixMilli()),
		Folder:   resultFolder,
		Format:   resultFormat,
	}
	res, err := p.Store.Store(ctx, processed, obj)
	if err != nil {
		return domain.PipelineResult{}, fmt.Errorf("op=pipeline.store imageId=%s: %w", job.ImageID, err)
	}
	timings[domain.PhaseStore] = time.Since(start).Milliseconds()

	observability.ObservePhaseDuration(domain.PhaseFetch, time.Duration(timings[domain.PhaseFetch])*time.Millisecond)
	observability.ObservePhaseDuration(domain.PhaseTransform, time.Duration(timings[domain.PhaseTransform])*time.Millisecond)
	observability.ObservePhaseDuration(domain.PhaseStore, time.Duration(timings[domain.PhaseStore])*time.Millisecond)

	return domain.PipelineResult{
		ImageID:      job.ImageID,
		ProcessedURL: res.SecureURL,
		PublicID:     res.PublicID,
		Style:        job.Style,
		Timings:      timings,
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// innerRetryBackOff implements backoff.BackOff with a fixed exponential
// schedule: attempt k (1-based) waits 2^k seconds. It never reports Stop on
// its own; the retry cap is enforced by op returning backoff.Permanent once
// Policy.TransformInnerRetryCap is reached.
type innerRetryBackOff struct {
	attempt int
}

func (b *innerRetryBackOff) NextBackOff() time.Duration {
	b.attempt++
	return (1 << b.attempt) * time.Second
}

func (b *innerRetryBackOff) Reset() {
	b.attempt = 0
}
