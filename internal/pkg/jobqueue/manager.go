package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	metrics "github.com/mkarst/CertForge/internal/pkg/metrics/counter"
	"github.com/mkarst/CertForge/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	reconcileTicker    *time.Ticker
	archiveTicker      *time.Ticker
	counterFlushTicker *time.Ticker
	reminderTicker     *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := envInt("JOB_QUEUE_WORKERS", 5)
		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	reconcileInterval := time.Duration(envInt("BILLING_RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute
	m.reconcileTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.reconcileWorker(reconcileInterval)

	archiveInterval := time.Duration(envInt("EVENT_ARCHIVE_INTERVAL_HOURS", 6)) * time.Hour
	m.archiveTicker = time.NewTicker(archiveInterval)
	m.wg.Add(1)
	go m.archiveWorker(archiveInterval)

	// Flush Redis counters to the DB every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	m.reminderTicker = time.NewTicker(time.Hour)
	m.wg.Add(1)
	go m.reminderWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.archiveTicker != nil {
		m.archiveTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.reminderTicker != nil {
		m.reminderTicker.Stop()
	}

	// Keep the closed channel in place: workers re-read m.stopCh on every
	// loop iteration and would block forever on a nil field.
	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically enqueues repair jobs for failed billing events
func (m *Manager) reconcileWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if err := m.queue.EnqueueFailedBillingEvents(50); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueuing failed billing events: %v", err)
			}
		}
	}
}

// archiveWorker periodically enqueues billing event archive sweeps
func (m *Manager) archiveWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started archive worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Archive worker stopping")
			return
		case <-m.archiveTicker.C:
			payload := EventArchiveJobPayload{}
			if _, err := m.queue.EnqueueJob(JobTypeEventArchive, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueuing archive sweep: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// reminderWorker fans out daily practice reminders at the configured hour.
// Per-user dedup lives in the reminder job itself.
func (m *Manager) reminderWorker() {
	defer m.wg.Done()
	reminderHour := envInt("REMINDER_HOUR_UTC", 17)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reminder worker stopping")
			return
		case <-m.reminderTicker.C:
			if time.Now().UTC().Hour() != reminderHour {
				continue
			}
			if err := m.queue.EnqueueStudyReminders(); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueuing study reminders: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return fallback
}
