package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Manager manages the global job queue and its background tasks
type Manager struct {
	queue           *Queue
	promoteInterval time.Duration
	promoteTicker   *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(NewQueue(env.GetInt("JOBQUEUE_WORKERS", 3)))
	})
	return globalManager
}

// NewManager wraps a queue with the delayed-job promoter.
func NewManager(q *Queue) *Manager {
	return &Manager{
		queue:           q,
		promoteInterval: time.Second,
		stopCh:          make(chan struct{}),
	}
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

	m.promoteTicker = time.NewTicker(m.promoteInterval)
	m.wg.Add(1)
	go m.promoteWorker()

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

	if m.promoteTicker != nil {
		m.promoteTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// promoteWorker moves due delayed jobs (polls, retries) to the work list
func (m *Manager) promoteWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started delayed job promoter (interval: %s)", m.promoteInterval)
	ctx := context.Background()

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Delayed job promoter stopping")
			return
		case <-m.promoteTicker.C:
			n, err := m.queue.PromoteDue(ctx)
			if err != nil {
				log.Errorf("[JobQueue Manager] Error promoting delayed jobs: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("[JobQueue Manager] Promoted %d delayed jobs", n)
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
