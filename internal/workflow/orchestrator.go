package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"procureflow/internal/lock"
	"procureflow/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tick names, also used as lease keys and by the scan command
const (
	TickAutoApproval    = "auto-approval"
	TickOrderGeneration = "order-generation"
	TickStatistics      = "statistics"
)

// Schedule holds the tick periods
type Schedule struct {
	AutoApproval    time.Duration
	OrderGeneration time.Duration
	Statistics      time.Duration
	LeaseTTL        time.Duration
}

// ScanResult summarises one enumerate-then-dispatch pass
type ScanResult struct {
	Scanned    int
	Dispatched int
	Skipped    int
	Failed     int
}

// Orchestrator owns the three recurring ticks
type Orchestrator struct {
	store       Store
	router      *ApprovalRouter
	fulfillment *Fulfillment
	stats       StatisticsSource
	notifier    Notifier
	leaser      lock.Leaser
	schedule    Schedule
	log         *zap.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	pending  sync.WaitGroup

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(store Store, router *ApprovalRouter, fulfillment *Fulfillment, stats StatisticsSource,
	notifier Notifier, leaser lock.Leaser, schedule Schedule, log *zap.Logger) *Orchestrator {
	if leaser == nil {
		leaser = lock.Local{}
	}
	return &Orchestrator{
		store:       store,
		router:      router,
		fulfillment: fulfillment,
		stats:       stats,
		notifier:    notifier,
		leaser:      leaser,
		schedule:    schedule,
		log:         log,
		inflight:    make(map[uuid.UUID]struct{}),
	}
}

// Start launches one goroutine per tick. Each tick runs once immediately and then at
// its fixed period.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	o.startTick(ctx, TickAutoApproval, o.schedule.AutoApproval, func(ctx context.Context) error {
		_, err := o.RunAutoApprovalScan(ctx)
		return err
	})
	o.startTick(ctx, TickOrderGeneration, o.schedule.OrderGeneration, func(ctx context.Context) error {
		_, err := o.RunOrderGenerationScan(ctx)
		return err
	})
	o.startTick(ctx, TickStatistics, o.schedule.Statistics, o.RunStatisticsBroadcast)

	o.log.Info("workflow orchestrator started",
		zap.Duration("auto_approval_period", o.schedule.AutoApproval),
		zap.Duration("order_generation_period", o.schedule.OrderGeneration),
		zap.Duration("statistics_period", o.schedule.Statistics))
}

// Stop halts the tickers and waits for running passes. Dispatched fulfillment work and
// confirmation timers belong to the worker pool and are not cancelled here.
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.wg.Wait()
	o.log.Info("workflow orchestrator stopped")
}

// RunTick runs a single pass of the named tick
func (o *Orchestrator) RunTick(ctx context.Context, name string) error {
	switch name {
	case TickAutoApproval:
		_, err := o.RunAutoApprovalScan(ctx)
		return err
	case TickOrderGeneration:
		_, err := o.RunOrderGenerationScan(ctx)
		return err
	case TickStatistics:
		return o.RunStatisticsBroadcast(ctx)
	default:
		return fmt.Errorf("unknown tick %q", name)
	}
}

// WaitIdle blocks until every dispatched order generation has finished or ctx is done
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) startTick(ctx context.Context, name string, period time.Duration, run func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		o.runTick(ctx, name, run)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.runTick(ctx, name, run)
			}
		}
	}()
}

func (o *Orchestrator) runTick(ctx context.Context, name string, run func(context.Context) error) {
	log := o.log.With(zap.String("tick", name))
	defer func() {
		if r := recover(); r != nil {
			log.Error("tick panicked", zap.Any("panic", r))
		}
	}()

	release, err := o.leaser.Acquire(ctx, name, o.schedule.LeaseTTL)
	if errors.Is(err, lock.ErrHeld) {
		log.Debug("tick running on another replica, skipping")
		return
	}
	if err != nil {
		log.Warn("failed to acquire tick lease, skipping", zap.Error(err))
		return
	}
	defer release()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		log.Error("tick failed", zap.Error(err))
	}
}

// RunAutoApprovalScan evaluates every PENDING request once. A missing system approver
// skips the whole pass; a failing item is logged and the pass continues.
func (o *Orchestrator) RunAutoApprovalScan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	log := o.log.With(zap.String("tick", TickAutoApproval))

	if _, err := o.router.SystemApprover(ctx); err != nil {
		if errors.Is(err, ErrNoSystemApprover) {
			log.Warn("auto-approval skipped: no system approver", zap.Error(err))
			return res, nil
		}
		return res, fmt.Errorf("failed to resolve system approver: %w", err)
	}

	requests, err := o.store.Requests.ListByStatus(ctx, model.RequestPending)
	if err != nil {
		return res, fmt.Errorf("failed to list pending requests: %w", err)
	}
	res.Scanned = len(requests)

	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		_, err := o.router.Route(ctx, req.ID)
		switch {
		case err == nil:
			res.Dispatched++
		case errors.Is(err, ErrPreconditionFailed):
			res.Skipped++
			log.Debug("request changed since scan", zap.String("request_id", req.ID.String()), zap.Error(err))
		default:
			res.Failed++
			log.Error("failed to route request", zap.String("request_id", req.ID.String()), zap.Error(err))
		}
	}

	if res.Scanned > 0 {
		log.Info("auto-approval scan finished",
			zap.Int("scanned", res.Scanned), zap.Int("routed", res.Dispatched),
			zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	}
	return res, nil
}

// RunOrderGenerationScan dispatches order generation for every APPROVED request. The
// precondition is re-checked inside each dispatched task; the in-flight set only avoids
// dispatching the same request twice while an attempt is still running.
func (o *Orchestrator) RunOrderGenerationScan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	log := o.log.With(zap.String("tick", TickOrderGeneration))

	requests, err := o.store.Requests.ListByStatus(ctx, model.RequestApproved)
	if err != nil {
		return res, fmt.Errorf("failed to list approved requests: %w", err)
	}
	res.Scanned = len(requests)

	for _, req := range requests {
		if !o.markInflight(req.ID) {
			res.Skipped++
			continue
		}
		id := req.ID
		o.pending.Add(1)
		o.fulfillment.Dispatch(id, func() {
			o.clearInflight(id)
			o.pending.Done()
		})
		res.Dispatched++
	}

	if res.Scanned > 0 {
		log.Info("order generation scan finished",
			zap.Int("scanned", res.Scanned), zap.Int("dispatched", res.Dispatched), zap.Int("skipped", res.Skipped))
	}
	return res, nil
}

// RunStatisticsBroadcast publishes one aggregate snapshot
func (o *Orchestrator) RunStatisticsBroadcast(ctx context.Context) error {
	stats, err := o.stats.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}
	o.notifier.BroadcastStatistics(stats)
	return nil
}

func (o *Orchestrator) markInflight(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[id]; ok {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) clearInflight(id uuid.UUID) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}
