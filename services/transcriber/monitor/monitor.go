package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

// Waiter blocks until a job reaches a terminal state.
type Waiter interface {
	WaitForCompletion(ctx context.Context, jobID, dbID string, interval time.Duration) (*entity.JobStatus, error)
}

// JobMonitor keeps polling started jobs in the background so their rows are
// finalised even when no browser is polling anymore.
type JobMonitor struct {
	waiter   Waiter
	interval time.Duration
	timeout  time.Duration
	sessions map[string]*JobSession
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	log      *slog.Logger
}

type JobSession struct {
	JobID     string
	DBID      string
	StartTime time.Time
	cancel    context.CancelFunc
}

func New(waiter Waiter, interval, timeout time.Duration, log *slog.Logger) *JobMonitor {
	log.Debug("creating job monitor",
		slog.Duration("interval", interval),
		slog.Duration("timeout", timeout))

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	return &JobMonitor{
		waiter:   waiter,
		interval: interval,
		timeout:  timeout,
		sessions: make(map[string]*JobSession),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Track starts watching a job. Tracking a job twice is a no-op.
func (m *JobMonitor) Track(jobID, dbID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		m.log.Warn("monitor stopped, not tracking job", slog.String("job_id", jobID))
		return
	}
	if _, exists := m.sessions[jobID]; exists {
		m.log.Debug("job already tracked", slog.String("job_id", jobID))
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.timeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.timeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}

	session := &JobSession{
		JobID:     jobID,
		DBID:      dbID,
		StartTime: time.Now(),
		cancel:    cancel,
	}
	m.sessions[jobID] = session

	m.wg.Add(1)
	go m.watch(ctx, session)

	m.log.Info("tracking job",
		slog.String("job_id", jobID),
		slog.String("db_id", dbID),
		slog.Int("active", len(m.sessions)))
}

func (m *JobMonitor) watch(ctx context.Context, session *JobSession) {
	defer m.wg.Done()
	defer m.remove(session)

	st, err := m.waiter.WaitForCompletion(ctx, session.JobID, session.DBID, m.interval)
	if err != nil {
		m.log.Warn("stopped watching job",
			slog.String("job_id", session.JobID),
			slog.Duration("elapsed", time.Since(session.StartTime)),
			slog.String("error", err.Error()))
		return
	}

	m.log.Info("job finished",
		slog.String("job_id", session.JobID),
		slog.String("status", string(st.Status)),
		slog.Duration("elapsed", time.Since(session.StartTime)))
}

func (m *JobMonitor) remove(session *JobSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session.cancel()
	if current, ok := m.sessions[session.JobID]; ok && current == session {
		delete(m.sessions, session.JobID)
	}
}

// Untrack stops watching a job.
func (m *JobMonitor) Untrack(jobID string) error {
	m.mu.RLock()
	session, exists := m.sessions[jobID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s is not tracked", jobID)
	}

	session.cancel()
	m.log.Info("untracked job", slog.String("job_id", jobID))
	return nil
}

// Active lists the job ids currently being watched.
func (m *JobMonitor) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every watch and waits for the goroutines to return.
func (m *JobMonitor) Stop() {
	m.mu.Lock()
	active := len(m.sessions)
	m.cancel()
	m.mu.Unlock()

	m.log.Info("stopping job monitor", slog.Int("active", active))
	m.wg.Wait()
}
