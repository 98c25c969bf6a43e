package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dlass/internal/external/kv"
	"dlass/internal/metrics"
	"dlass/internal/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MonitorReport итог одного прохода монитора
type MonitorReport struct {
	Checked      int `json:"checked"`
	Healthy      int `json:"healthy"`
	Reconnected  int `json:"reconnected"`
	Disconnected int `json:"disconnected"`
	Unchanged    int `json:"unchanged"`
}

// ConnectionMonitor периодически проверяет подключения досок к удаленному хранилищу.
// Истекший токен обновляется по сохраненным учетным данным, отказ в доступе снимает
// признак Connected, оставляя UseRemote. Сетевые сбои состояние не меняют.
type ConnectionMonitor struct {
	store    model.Store
	remote   RemoteStore
	metrics  *metrics.Metrics
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

var _ MonitorInterface = (*ConnectionMonitor)(nil)

// NewConnectionMonitor создает новый монитор соединений
func NewConnectionMonitor(deps Dependencies, schedule string) *ConnectionMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	return &ConnectionMonitor{
		store:    deps.Store,
		remote:   deps.Remote,
		metrics:  deps.Metrics,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start запускает монитор
func (m *ConnectionMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("connection monitor is already running")
	}

	id, err := m.cron.AddFunc(m.schedule, m.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to schedule connection monitor: %w", err)
	}
	m.entryID = id

	m.cron.Start()
	m.running = true
	m.metrics.SetNextMonitorRun(m.cron.Entry(id).Next)

	m.logger.Info("Connection monitor started", zap.String("cron", m.schedule))
	return nil
}

// Stop останавливает монитор
func (m *ConnectionMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.cancel()
	<-m.cron.Stop().Done()
	m.running = false

	m.logger.Info("Connection monitor stopped")
}

func (m *ConnectionMonitor) runScheduled() {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Minute)
	defer cancel()

	report := m.RunOnce(ctx)
	m.metrics.SetNextMonitorRun(m.cron.Entry(m.entryID).Next)

	m.logger.Info("Connection monitor run completed",
		zap.Int("checked", report.Checked),
		zap.Int("reconnected", report.Reconnected),
		zap.Int("disconnected", report.Disconnected))
}

// RunOnce проверяет все доски с включенным удаленным режимом
func (m *ConnectionMonitor) RunOnce(ctx context.Context) MonitorReport {
	var report MonitorReport

	whiteboards, err := m.store.Whiteboards().ListRemoteEnabled(ctx)
	if err != nil {
		m.logger.Error("Failed to list remote whiteboards", zap.Error(err))
		return report
	}

	for i := range whiteboards {
		if ctx.Err() != nil {
			break
		}

		wb := &whiteboards[i]
		report.Checked++

		switch m.check(ctx, wb) {
		case stateHealthy:
			report.Healthy++
		case stateReconnected:
			report.Reconnected++
		case stateDisconnected:
			report.Disconnected++
		default:
			report.Unchanged++
		}
	}

	m.metrics.RecordMonitorRun(report.Reconnected, report.Disconnected)
	return report
}

type connectionState int

const (
	stateUnchanged connectionState = iota
	stateHealthy
	stateReconnected
	stateDisconnected
)

// check проверяет одну доску и сохраняет изменения ее состояния
func (m *ConnectionMonitor) check(ctx context.Context, wb *model.Whiteboard) connectionState {
	mode := ResolveMode(wb)
	if session, ok := mode.Session(); ok {
		_, err := m.remote.Info(ctx, session)
		if err == nil {
			return stateHealthy
		}
		if !errors.Is(err, kv.ErrNotAuthenticated) {
			m.logger.Warn("Remote store probe failed",
				zap.Int64("whiteboard_id", wb.ID),
				zap.Error(err))
			return stateUnchanged
		}
	}

	return m.reauthenticate(ctx, wb)
}

func (m *ConnectionMonitor) reauthenticate(ctx context.Context, wb *model.Whiteboard) connectionState {
	namespace, password, ok := wb.Credentials()
	if !ok {
		return m.markDisconnected(ctx, wb, errors.New("no stored credentials"))
	}

	session, err := m.remote.Authenticate(ctx, namespace, password)
	if err != nil {
		var authErr *kv.AuthError
		if errors.As(err, &authErr) {
			return m.markDisconnected(ctx, wb, err)
		}
		m.logger.Warn("Remote store re-authentication failed",
			zap.Int64("whiteboard_id", wb.ID),
			zap.Error(err))
		return stateUnchanged
	}

	updated, err := m.store.Whiteboards().RefreshRemoteToken(ctx, wb.ID, wb.RemoteSync, session.Token)
	if err != nil {
		m.logger.Error("Failed to save refreshed token",
			zap.Int64("whiteboard_id", wb.ID),
			zap.Error(err))
		return stateUnchanged
	}
	if !updated {
		m.logger.Info("Remote settings changed during check, token discarded",
			zap.Int64("whiteboard_id", wb.ID))
		return stateUnchanged
	}

	m.logger.Info("Whiteboard reconnected to remote store",
		zap.Int64("whiteboard_id", wb.ID),
		zap.String("namespace", namespace))
	return stateReconnected
}

func (m *ConnectionMonitor) markDisconnected(ctx context.Context, wb *model.Whiteboard, cause error) connectionState {
	if !wb.Connected && wb.AuthToken == nil {
		return stateUnchanged
	}

	updated, err := m.store.Whiteboards().MarkRemoteDisconnected(ctx, wb.ID, wb.RemoteSync)
	if err != nil {
		m.logger.Error("Failed to mark whiteboard disconnected",
			zap.Int64("whiteboard_id", wb.ID),
			zap.Error(err))
		return stateUnchanged
	}
	if !updated {
		m.logger.Info("Remote settings changed during check, state kept",
			zap.Int64("whiteboard_id", wb.ID))
		return stateUnchanged
	}

	m.logger.Warn("Whiteboard disconnected from remote store",
		zap.Int64("whiteboard_id", wb.ID),
		zap.Error(cause))
	return stateDisconnected
}
