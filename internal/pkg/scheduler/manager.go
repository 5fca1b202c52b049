package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/velvetline/velvetline/app/models"
	metrics "github.com/velvetline/velvetline/internal/pkg/metrics/counter"
	"github.com/velvetline/velvetline/internal/pkg/payment"
	"github.com/velvetline/velvetline/internal/pkg/statistics"
)

// Manager drives the reconciliation scheduler and the payment sweeps on
// recurring tickers. It is the only place that owns wall-clock cadence; the
// scheduler and guard themselves are tick-agnostic.
type Manager struct {
	scheduler *Scheduler
	guard     *payment.Guard

	cleanupTicker      *time.Ticker
	verifyTicker       *time.Ticker
	recoveryTicker     *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton). Wire it once
// with Configure before starting.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Configure attaches the scheduler and payment guard. Must be called before
// Start.
func (m *Manager) Configure(s *Scheduler, g *payment.Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
	m.guard = g
}

// Start starts the background tickers. Intervals come from app settings with
// sane fallbacks.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.scheduler == nil || m.guard == nil {
		log.Error("[Scheduler Manager] Not configured; refusing to start")
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler Manager] Starting reconciliation and payment sweeps")

	cleanupInterval := 5 * time.Minute
	verifyInterval := 3 * time.Minute
	recoveryInterval := 60 * time.Minute
	if settings := models.GetAppSettings(); settings != nil {
		cleanupInterval = time.Duration(settings.GetCleanupInterval()) * time.Minute
		verifyInterval = time.Duration(settings.GetVerifySweepInterval()) * time.Minute
		recoveryInterval = time.Duration(settings.GetRecoverySweepInterval()) * time.Minute
	}

	m.cleanupTicker = time.NewTicker(cleanupInterval)
	m.wg.Add(1)
	go m.cleanupWorker()

	m.verifyTicker = time.NewTicker(verifyInterval)
	m.wg.Add(1)
	go m.verifyWorker()

	m.recoveryTicker = time.NewTicker(recoveryInterval)
	m.wg.Add(1)
	go m.recoveryWorker()

	// Flush pending Redis counters to the DB every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[Scheduler Manager] Started successfully")
}

// Stop stops all tickers and waits for in-flight workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler Manager] Stopping background sweeps...")

	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.verifyTicker != nil {
		m.verifyTicker.Stop()
	}
	if m.recoveryTicker != nil {
		m.recoveryTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Scheduler Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunCycleNow exposes a manual trigger for a single reconciliation cycle
// (admin use).
func (m *Manager) RunCycleNow(ctx context.Context) (*CycleReport, error) {
	return m.scheduler.RunCycle(ctx)
}

// counterFlushWorker periodically flushes in-memory counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[Scheduler Manager] Counter flush error: %v", err)
			}
		}
	}
}

func (m *Manager) cleanupWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Cleanup worker stopping")
			return
		case <-m.cleanupTicker.C:
			log.Debug("[Scheduler Manager] Running reconciliation cycle")
			if _, err := m.scheduler.RunCycle(context.Background()); err != nil {
				if errors.Is(err, ErrCycleRunning) {
					// Previous cycle still draining a backlog; skip this tick.
					log.Debug("[Scheduler Manager] Cycle still running, tick skipped")
					continue
				}
				log.Errorf("[Scheduler Manager] Reconciliation cycle error: %v", err)
				continue
			}
			statistics.UpdateCacheIfNeeded()
		}
	}
}

func (m *Manager) verifyWorker() {
	defer m.wg.Done()
	limit := 25
	if settings := models.GetAppSettings(); settings != nil {
		limit = settings.GetVerifySweepLimit()
	}
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Verification worker stopping")
			return
		case <-m.verifyTicker.C:
			res, err := m.guard.VerifyPending(context.Background(), limit)
			if err != nil {
				if errors.Is(err, payment.ErrAlreadyRunning) {
					continue
				}
				log.Errorf("[Scheduler Manager] Verification sweep error: %v", err)
				continue
			}
			if res.Checked > 0 {
				log.Infof("[Scheduler Manager] Verification sweep checked %d, reconciled %d", res.Checked, res.Verified)
			}
		}
	}
}

func (m *Manager) recoveryWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Recovery worker stopping")
			return
		case <-m.recoveryTicker.C:
			res, err := m.guard.RecoverMissed(context.Background())
			if err != nil {
				if errors.Is(err, payment.ErrAlreadyRunning) {
					continue
				}
				log.Errorf("[Scheduler Manager] Recovery sweep error: %v", err)
				continue
			}
			if res.Recovered > 0 {
				log.Warnf("[Scheduler Manager] Recovery sweep recovered %d missed payments", res.Recovered)
			}
		}
	}
}
