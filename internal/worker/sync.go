package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

// SyncTagReminders is the registered background sync tag for the
// reminder mutation queue.
const SyncTagReminders = "sync-reminders"

// syncReplayTimeout bounds a single replayed request.
const syncReplayTimeout = 15 * time.Second

// Replay pacing towards the upstream. A long offline stretch can queue
// hundreds of mutations; the limiter keeps the replay pass from hammering
// a freshly recovered origin.
const (
	syncReplayRate  = 10
	syncReplayBurst = 10
)

// SyncResult summarizes one replay pass over a sync tag's queue.
type SyncResult struct {
	Tag       string    `json:"tag"`
	Replayed  int       `json:"replayed"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Syncer replays queued offline mutations when connectivity returns.
// Each pending mutation is attempted once per pass; a 2xx response
// removes it from the queue, anything else records the failure and
// leaves it queued for the next pass.
type Syncer struct {
	repo    repository.SyncRepository
	client  *http.Client
	baseURL *url.URL
	bus     *Bus
	limiter *rate.Limiter
	log     logger.Logger
}

// NewSyncer creates a Syncer. baseURL resolves relative mutation URLs.
func NewSyncer(repo repository.SyncRepository, client *http.Client, base string, bus *Bus, log logger.Logger) (*Syncer, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errors.Newf("parse sync base url %q: %v", base, err).
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Default()
	}
	return &Syncer{
		repo:    repo,
		client:  client,
		baseURL: baseURL,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(syncReplayRate), syncReplayBurst),
		log:     log,
	}, nil
}

// HandleSync replays every pending mutation for the tag and broadcasts
// a SYNC_COMPLETE message with the result. Unknown tags replay nothing.
func (s *Syncer) HandleSync(ctx context.Context, tag string) (*SyncResult, error) {
	pending, err := s.repo.ListPending(ctx, tag)
	if err != nil {
		return nil, errors.New(err).
			Component("worker").
			Category(errors.CategoryState).
			Context("operation", "list_pending_mutations").
			Build()
	}

	result := &SyncResult{Tag: tag, Timestamp: time.Now()}
	for _, mutation := range pending {
		if err := s.replay(ctx, &mutation); err != nil {
			result.Failed++
			s.log.Warn("sync replay failed",
				logger.String("tag", tag),
				logger.String("url", mutation.URL),
				logger.Int("attempts", mutation.Attempts+1),
				logger.Error(err))
			if recErr := s.repo.RecordFailure(ctx, mutation.ID, err.Error()); recErr != nil {
				s.log.Error("recording sync failure", logger.Error(recErr))
			}
			continue
		}
		if err := s.repo.Delete(ctx, mutation.ID); err != nil {
			s.log.Error("removing replayed mutation", logger.Error(err))
		}
		result.Replayed++
	}

	s.log.Info("background sync pass complete",
		logger.String("tag", tag),
		logger.Int("replayed", result.Replayed),
		logger.Int("failed", result.Failed))
	if s.bus != nil {
		s.bus.BroadcastPayload(MessageSyncComplete, result)
	}
	return result, nil
}

func (s *Syncer) replay(ctx context.Context, mutation *entities.SyncMutation) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, syncReplayTimeout)
	defer cancel()

	target := mutation.URL
	if ref, err := url.Parse(target); err == nil {
		target = s.baseURL.ResolveReference(ref).String()
	}

	var body io.Reader
	if mutation.Body != "" {
		body = bytes.NewReader([]byte(mutation.Body))
	}
	req, err := http.NewRequestWithContext(ctx, mutation.Method, target, body)
	if err != nil {
		return err
	}
	if mutation.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("replay returned status %d", resp.StatusCode).
			Component("worker").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}
