package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bkam-rates/db"
	"bkam-rates/models"
)

// Queue is the request store the scheduler drains
type Queue interface {
	ClaimNextRequest(ctx context.Context) (*db.Request, error)
	UpdateRequestStatus(ctx context.Context, requestID int, status string) error
	SaveAttempts(ctx context.Context, requestID int, attempts []models.Attempt) error
	CompleteRequest(ctx context.Context, requestID int, result *models.Result) error
}

// Runner runs the pipeline for one date
type Runner interface {
	Run(ctx context.Context, date time.Time) (*models.Result, error)
}

// Notifier tells the requester how a queued request went
type Notifier interface {
	NotifyStarted(req *db.Request)
	NotifyResult(req *db.Request, result *models.Result)
}

// Scheduler processes queued fetch requests one at a time
type Scheduler struct {
	queue    Queue
	runner   Runner
	notifier Notifier
	limiter  *rate.Limiter
	interval time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewScheduler creates a scheduler polling every interval. Pipeline runs
// start at most once per minGap.
func NewScheduler(queue Queue, runner Runner, notifier Notifier, interval, minGap time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	limit := rate.Inf
	if minGap > 0 {
		limit = rate.Every(minGap)
	}

	return &Scheduler{
		queue:    queue,
		runner:   runner,
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		log:      log,
	}
}

// Start starts the scheduler in a goroutine
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop stops the scheduler and waits for the current request to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("Scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything queued before waiting for the next tick
			for ctx.Err() == nil {
				processed, err := s.ProcessNext(ctx)
				if err != nil {
					s.log.Sugar().Errorf("Error processing request: %v", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

// ProcessNext claims and runs the oldest queued request. It reports false
// when the queue was empty.
func (s *Scheduler) ProcessNext(ctx context.Context) (bool, error) {
	req, err := s.queue.ClaimNextRequest(ctx)
	if err != nil {
		return false, err
	}
	if req == nil {
		return false, nil
	}

	log := s.log.Sugar()
	log.Infof("Processing request ID %d for user %d (%s)", req.ID, req.UserID, req.RateDate.Format("2006-01-02"))
	s.notifier.NotifyStarted(req)

	if err := s.limiter.Wait(ctx); err != nil {
		// never ran: put it back for the next start
		if qerr := s.queue.UpdateRequestStatus(context.WithoutCancel(ctx), req.ID, db.StatusCreated); qerr != nil {
			log.Errorf("Error requeueing request %d: %v", req.ID, qerr)
		}
		return true, err
	}

	result, runErr := s.runner.Run(ctx, req.RateDate)
	if result == nil {
		result = &models.Result{Date: req.RateDate, Err: runErr}
	}

	if err := s.queue.SaveAttempts(ctx, req.ID, result.Attempts); err != nil {
		log.Warnf("Failed to save attempts for request %d: %v", req.ID, err)
	}
	if err := s.queue.CompleteRequest(ctx, req.ID, result); err != nil {
		log.Errorf("Error updating request %d: %v", req.ID, err)
	}

	s.notifier.NotifyResult(req, result)
	return true, nil
}
