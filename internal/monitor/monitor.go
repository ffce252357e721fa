// Package monitor implements the posture engine: smoothing, calibration,
// classification with escalation, session accounting and alert gating, driven by
// one sample source at a time.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/postureguard/internal/logger"
	"github.com/rewired-gh/postureguard/internal/models"
	"github.com/rewired-gh/postureguard/internal/source"
)

// Connection status strings shown to the user.
const (
	StatusNotStarted   = "Not started"
	StatusInitializing = "Initializing..."
	StatusConnecting   = "Connecting to sensor..."
	StatusConnected    = "Connected"
	StatusSimulation   = "Simulation mode"
	StatusFallback     = "Sensor unavailable - switched to simulation"
	StatusStopped      = "Stopped"
)

const persistQueueSize = 64

// Store persists settings, alerts and finished sessions. Writes are best-effort.
type Store interface {
	SaveSettings(values map[string]float64) error
	AddAlert(alert *models.AlertEvent) error
	SaveSession(record *models.SessionRecord) error
}

// Notifier delivers an alert to the user.
type Notifier interface {
	Notify(ctx context.Context, alert models.AlertEvent) error
}

type Config struct {
	FilterAlpha        float64
	EscalationDelay    time.Duration
	AlertCooldown      time.Duration
	HistorySize        int
	CalibrationHold    time.Duration
	CalibrationSamples int
	ConnectGrace       time.Duration
	RestartDelay       time.Duration
	NotifyTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		FilterAlpha:        DefaultAlpha,
		EscalationDelay:    2 * time.Second,
		AlertCooldown:      10 * time.Second,
		HistorySize:        100,
		CalibrationHold:    3 * time.Second,
		CalibrationSamples: 30,
		ConnectGrace:       2 * time.Second,
		RestartDelay:       500 * time.Millisecond,
		NotifyTimeout:      5 * time.Second,
	}
}

// Validate checks engine configuration constraints.
func (c *Config) Validate() error {
	if !(c.FilterAlpha > 0 && c.FilterAlpha <= 1) {
		return fmt.Errorf("filter alpha must be in (0, 1], got %v", c.FilterAlpha)
	}
	if c.EscalationDelay < 0 {
		return errors.New("escalation delay must not be negative")
	}
	if c.AlertCooldown < 0 {
		return errors.New("alert cooldown must not be negative")
	}
	if c.HistorySize <= 0 {
		return errors.New("history size must be positive")
	}
	if c.CalibrationHold < 0 {
		return errors.New("calibration hold must not be negative")
	}
	if c.CalibrationSamples <= 0 {
		return errors.New("calibration samples must be positive")
	}
	if c.ConnectGrace <= 0 {
		return errors.New("connect grace must be positive")
	}
	if c.RestartDelay < 0 {
		return errors.New("restart delay must not be negative")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("notify timeout must be positive")
	}
	return nil
}

// Deps are the collaborators of a Monitor. Only Simulated is required.
type Deps struct {
	// Live is tried first on every start. Nil means simulation only.
	Live      source.Source
	Simulated source.Source
	Store     Store
	Notifier  Notifier
	// Settings are the durable values loaded at startup. Nil means defaults.
	Settings *models.Settings
	Clock    func() time.Time
}

type run struct {
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	samples chan models.OrientationSample
}

// Monitor owns all live posture state. Samples are processed one at a time by a
// single tick loop; every exported method is safe for concurrent use.
type Monitor struct {
	cfg      Config
	live     source.Source
	sim      source.Source
	store    Store
	notifier Notifier
	now      func() time.Time

	// lifecycle serialises Start, Stop and Close.
	lifecycle sync.Mutex

	mu          sync.Mutex
	settings    models.Settings
	classifier  *Classifier
	accountant  *Accountant
	gate        *AlertGate
	pitch       float64
	last        models.OrientationSample
	state       models.PostureState
	poorNow     bool
	conn        models.ConnectionState
	status      string
	lastError   string
	calibrating bool
	calCancel   context.CancelFunc
	sessionID   string
	alertCount  int
	run         *run
	draining    chan struct{}
	gen         uint64
	closed      bool

	notifyWG sync.WaitGroup

	persistMu   sync.RWMutex
	jobsClosed  bool
	jobs        chan func(Store) error
	persistDone chan struct{}
}

// New builds a stopped Monitor.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %w", err)
	}
	if deps.Simulated == nil {
		return nil, errors.New("simulated source is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	settings := models.DefaultSettings()
	if deps.Settings != nil {
		settings = *deps.Settings
	}

	now := clock()
	m := &Monitor{
		cfg:         cfg,
		live:        deps.Live,
		sim:         deps.Simulated,
		store:       deps.Store,
		notifier:    deps.Notifier,
		now:         clock,
		settings:    settings,
		classifier:  NewClassifier(cfg.EscalationDelay),
		accountant:  NewAccountant(cfg.HistorySize, now),
		gate:        NewAlertGate(cfg.AlertCooldown),
		state:       models.Good(0),
		conn:        models.ConnectionNotStarted,
		status:      StatusNotStarted,
		sessionID:   uuid.NewString(),
		jobs:        make(chan func(Store) error, persistQueueSize),
		persistDone: make(chan struct{}),
	}
	go m.persister()
	return m, nil
}

// Start begins consuming samples. It is a no-op on a running monitor. The run
// lasts until Stop or until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.activeLocked() != nil {
		m.mu.Unlock()
		return nil
	}
	if drain := m.takeDrainingLocked(); drain != nil {
		m.mu.Unlock()
		<-drain
		m.mu.Lock()
	}
	m.gen++
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		gen:     m.gen,
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		samples: make(chan models.OrientationSample, 1),
	}
	m.run = r
	m.classifier.Reset()
	m.accountant.Reanchor(m.now())
	m.conn = models.ConnectionConnecting
	m.status = StatusInitializing
	m.lastError = ""
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.tickLoop(runCtx, r)
	}()
	go func() {
		defer wg.Done()
		m.supervise(runCtx, r)
	}()
	go func() {
		wg.Wait()
		close(r.done)
	}()
	go func() {
		<-runCtx.Done()
		m.mu.Lock()
		if m.run == r {
			m.retireLocked()
			logger.Info("Monitor run %d ended: %v", r.gen, context.Cause(runCtx))
		}
		m.mu.Unlock()
	}()

	logger.Info("Monitor started (run %d)", r.gen)
	return nil
}

// Stop cancels the current run, any calibration in flight and any pending
// fallback timer, and waits until no further sample can be processed.
func (m *Monitor) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.stopLocked()
}

func (m *Monitor) stopLocked() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	r := m.activeLocked()
	if r == nil {
		drain := m.takeDrainingLocked()
		m.mu.Unlock()
		if drain != nil {
			<-drain
		}
		return nil
	}
	m.run = nil
	if m.calCancel != nil {
		m.calCancel()
	}
	m.conn = models.ConnectionStopped
	m.status = StatusStopped
	m.mu.Unlock()

	r.cancel()
	<-r.done
	logger.Info("Monitor stopped (run %d)", r.gen)
	return nil
}

// Restart stops, waits the configured restart delay and starts again.
func (m *Monitor) Restart(ctx context.Context) error {
	if err := m.Stop(); err != nil {
		return err
	}
	if m.cfg.RestartDelay > 0 {
		t := time.NewTimer(m.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return m.Start(ctx)
}

// Close stops the monitor, records the current session and flushes pending
// writes. The monitor cannot be restarted afterwards.
func (m *Monitor) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.stopLocked(); errors.Is(err, ErrClosed) {
		return nil
	}

	m.mu.Lock()
	m.closed = true
	record, ok := m.sessionRecordLocked(m.now())
	m.mu.Unlock()
	if ok {
		m.persist(func(s Store) error { return s.SaveSession(&record) })
	}

	m.notifyWG.Wait()

	m.persistMu.Lock()
	m.jobsClosed = true
	close(m.jobs)
	m.persistMu.Unlock()
	<-m.persistDone
	return nil
}

// ResetSession stores the current session if it has any time on it and starts a
// fresh one. Baseline and thresholds are kept.
func (m *Monitor) ResetSession() {
	m.mu.Lock()
	now := m.now()
	record, ok := m.sessionRecordLocked(now)
	m.accountant.Reset(now)
	m.classifier.Reset()
	m.state = models.Good(0)
	m.poorNow = false
	m.alertCount = 0
	m.sessionID = uuid.NewString()
	id := m.sessionID
	m.mu.Unlock()

	if ok {
		m.persist(func(s Store) error { return s.SaveSession(&record) })
	}
	logger.Info("Session reset, new session %s", id)
}

// Calibrate waits out the hold window and then sets the baseline to the median of
// the most recent pitch and roll history. Only one calibration runs at a time.
func (m *Monitor) Calibrate(ctx context.Context) (models.Baseline, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.Baseline{}, ErrClosed
	}
	if m.activeLocked() == nil {
		m.mu.Unlock()
		return models.Baseline{}, ErrNotRunning
	}
	if m.calibrating {
		m.mu.Unlock()
		return models.Baseline{}, ErrCalibrationInProgress
	}
	calCtx, cancel := context.WithCancel(ctx)
	m.calibrating = true
	m.calCancel = cancel
	gen := m.run.gen
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.calibrating = false
		m.calCancel = nil
		m.mu.Unlock()
		cancel()
	}()

	logger.Info("Calibrating baseline, hold still for %s", m.cfg.CalibrationHold)
	hold := time.NewTimer(m.cfg.CalibrationHold)
	defer hold.Stop()
	select {
	case <-calCtx.Done():
		m.setLastError("Calibration interrupted")
		return models.Baseline{}, fmt.Errorf("%w: %v", ErrCalibrationInterrupted, calCtx.Err())
	case <-hold.C:
	}

	m.mu.Lock()
	if r := m.activeLocked(); r == nil || r.gen != gen {
		m.lastError = "Calibration interrupted"
		m.mu.Unlock()
		return models.Baseline{}, ErrCalibrationInterrupted
	}
	pitches := m.accountant.PitchHistory().Tail(m.cfg.CalibrationSamples)
	rolls := m.accountant.RollHistory().Tail(m.cfg.CalibrationSamples)
	b := ComputeBaseline(pitches, rolls, m.pitch, m.last.Roll)
	m.settings.Baseline = b
	m.mu.Unlock()

	m.persist(func(s Store) error {
		return s.SaveSettings(map[string]float64{
			models.SettingReferencePitch: b.ReferencePitch,
			models.SettingReferenceRoll:  b.ReferenceRoll,
		})
	})
	logger.Info("Baseline calibrated: pitch=%.2f roll=%.2f (%d samples)", b.ReferencePitch, b.ReferenceRoll, len(pitches))
	return b, nil
}

func (m *Monitor) SetPoorPostureThreshold(v float64) {
	m.setSetting(models.SettingPoorPostureThreshold, v)
}

func (m *Monitor) SetWarningThreshold(v float64) {
	m.setSetting(models.SettingWarningThreshold, v)
}

func (m *Monitor) SetRollThreshold(v float64) {
	m.setSetting(models.SettingRollThreshold, v)
}

func (m *Monitor) setSetting(key string, v float64) {
	m.mu.Lock()
	m.settings.Set(key, v)
	m.mu.Unlock()
	m.persist(func(s Store) error {
		return s.SaveSettings(map[string]float64{key: v})
	})
	logger.Debug("Setting %s = %.2f", key, v)
}

func (m *Monitor) Thresholds() models.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Thresholds
}

func (m *Monitor) Baseline() models.Baseline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Baseline
}

// Snapshot returns a consistent copy of every published field.
func (m *Monitor) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	pitches := m.accountant.PitchHistory().Values()
	rolls := m.accountant.RollHistory().Values()
	return models.Snapshot{
		Pitch:                 m.pitch,
		Roll:                  m.last.Roll,
		Yaw:                   m.last.Yaw,
		RotationRate:          m.last.RotationRate,
		UserAcceleration:      m.last.UserAcceleration,
		Gravity:               m.last.Gravity,
		IsDeviceConnected:     m.conn == models.ConnectionLive,
		Connection:            m.conn,
		ConnectionStatus:      m.status,
		IsSimulationMode:      m.conn == models.ConnectionSimulated,
		LastError:             m.lastError,
		IsCalibrating:         m.calibrating,
		PostureState:          m.state,
		IsPoorPostureNow:      m.poorNow,
		PitchHistory:          pitches,
		RollHistory:           rolls,
		PitchStats:            Summarize(pitches),
		RollStats:             Summarize(rolls),
		SessionID:             m.sessionID,
		SessionStart:          m.accountant.SessionStart(),
		TotalSessionTime:      m.accountant.TotalSessionTime(),
		PoorPostureDuration:   m.accountant.PoorPostureDuration(),
		PoorPosturePercentage: m.accountant.PoorPosturePercentage(),
		AlertCount:            m.alertCount,
		Thresholds:            m.settings.Thresholds,
		ReferencePitch:        m.settings.Baseline.ReferencePitch,
		ReferenceRoll:         m.settings.Baseline.ReferenceRoll,
	}
}

// supervise runs the live source and falls back to simulation when it fails or
// sends nothing within the grace window.
func (m *Monitor) supervise(ctx context.Context, r *run) {
	sink := func(s models.OrientationSample) { offer(r.samples, s) }

	if m.live == nil {
		m.setConnection(r.gen, models.ConnectionSimulated, StatusSimulation)
		m.runSimulation(ctx, r, sink)
		return
	}

	m.setConnection(r.gen, models.ConnectionConnecting, StatusConnecting)
	liveCtx, cancelLive := context.WithCancel(ctx)
	defer cancelLive()

	connected := make(chan struct{})
	var once sync.Once
	liveSink := func(s models.OrientationSample) {
		once.Do(func() { close(connected) })
		sink(s)
	}

	errc := make(chan error, 1)
	go func() { errc <- m.live.Run(liveCtx, liveSink) }()

	grace := time.NewTimer(m.cfg.ConnectGrace)
	defer grace.Stop()

	var failure error
	select {
	case <-ctx.Done():
		<-errc
		return
	case err := <-errc:
		failure = liveFailure(err)
	case <-grace.C:
		cancelLive()
		<-errc
		failure = fmt.Errorf("%w: no sample within %s", source.ErrUnavailable, m.cfg.ConnectGrace)
	case <-connected:
		m.setConnection(r.gen, models.ConnectionLive, StatusConnected)
		logger.Info("Sensor %s connected", m.live.Name())
		select {
		case <-ctx.Done():
			<-errc
			return
		case err := <-errc:
			if ctx.Err() != nil {
				return
			}
			failure = liveFailure(err)
		}
	}

	if ctx.Err() != nil {
		return
	}
	logger.Warn("Sensor %s unavailable, switching to simulation: %v", m.live.Name(), failure)
	m.mu.Lock()
	if m.run == r {
		m.conn = models.ConnectionSimulated
		m.status = StatusFallback
		m.lastError = failure.Error()
	}
	m.mu.Unlock()
	m.runSimulation(ctx, r, sink)
}

func liveFailure(err error) error {
	if err == nil {
		return fmt.Errorf("%w: source ended", source.ErrUnavailable)
	}
	return err
}

func (m *Monitor) runSimulation(ctx context.Context, r *run, sink source.Sink) {
	if err := m.sim.Run(ctx, sink); err != nil {
		logger.Error("Simulated source %s failed: %v", m.sim.Name(), err)
		m.mu.Lock()
		if m.run == r {
			m.lastError = err.Error()
		}
		m.mu.Unlock()
	}
}

// offer hands s to the tick loop, replacing any sample still waiting.
func offer(ch chan models.OrientationSample, s models.OrientationSample) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Monitor) tickLoop(ctx context.Context, r *run) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-r.samples:
			m.process(r, s)
		}
	}
}

// process runs one tick: filter, classify, account and gate.
func (m *Monitor) process(r *run, s models.OrientationSample) {
	if err := s.Validate(); err != nil {
		logger.Debug("Dropping sample: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run != r {
		return
	}

	now := m.now()
	m.pitch = LowPass(s.Pitch, m.pitch, m.cfg.FilterAlpha)
	m.last = s

	b, t := m.settings.Baseline, m.settings.Thresholds
	prev := m.classifier.Previous()
	state, escalated := m.classifier.Classify(m.pitch, s.Roll, b, t, m.accountant.SessionStart(), now)
	m.poorNow = m.accountant.Tick(m.pitch, s.Roll, b, t, now)
	m.state = state
	if state.Kind != prev.Kind {
		logger.Debug("Posture %s -> %s", prev.Kind, state)
	}

	if !escalated {
		return
	}
	m.alertCount++
	if !m.gate.TryFire(now) {
		logger.Debug("Alert suppressed by cooldown")
		return
	}
	m.fireAlert(models.AlertEvent{
		ID:         uuid.NewString(),
		SessionID:  m.sessionID,
		Pitch:      state.Pitch,
		Roll:       s.Roll,
		Duration:   state.Duration,
		Baseline:   b,
		DetectedAt: now,
	})
}

// fireAlert notifies and records the alert without blocking the tick loop.
// Called with m.mu held.
func (m *Monitor) fireAlert(alert models.AlertEvent) {
	logger.Info("Poor posture alert: pitch=%.1f roll=%.1f for %s", alert.Pitch, alert.Roll, alert.Duration.Round(time.Millisecond))
	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()
		if m.notifier != nil {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
			err := m.notifier.Notify(ctx, alert)
			cancel()
			if err != nil {
				logger.Warn("Failed to deliver alert %s: %v", alert.ID, err)
				m.setLastError(fmt.Sprintf("Alert notification failed: %v", err))
			} else {
				alert.Notified = true
			}
		}
		m.persist(func(s Store) error { return s.AddAlert(&alert) })
	}()
}

// activeLocked returns the current run, retiring it first if its context has
// ended without a Stop.
func (m *Monitor) activeLocked() *run {
	if m.run != nil && m.run.ctx.Err() != nil {
		m.retireLocked()
	}
	return m.run
}

// retireLocked cancels and forgets the current run. Its done channel is kept so
// the next Start or Stop can wait for its goroutines.
func (m *Monitor) retireLocked() {
	m.run.cancel()
	m.draining = m.run.done
	m.run = nil
	if m.calCancel != nil {
		m.calCancel()
	}
	m.conn = models.ConnectionStopped
	m.status = StatusStopped
}

func (m *Monitor) takeDrainingLocked() chan struct{} {
	d := m.draining
	m.draining = nil
	return d
}

func (m *Monitor) setConnection(gen uint64, conn models.ConnectionState, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil || m.run.gen != gen {
		return
	}
	m.conn = conn
	m.status = status
}

func (m *Monitor) setLastError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = msg
}

// sessionRecordLocked summarises the current session. ok is false when no time
// has been accounted.
func (m *Monitor) sessionRecordLocked(now time.Time) (record models.SessionRecord, ok bool) {
	total := m.accountant.TotalSessionTime()
	if total <= 0 {
		return models.SessionRecord{}, false
	}
	started := m.accountant.SessionStart()
	if now.Before(started) {
		now = started
	}
	return models.SessionRecord{
		ID:                    m.sessionID,
		StartedAt:             started,
		EndedAt:               now,
		TotalTime:             total,
		PoorPostureTime:       m.accountant.PoorPostureDuration(),
		PoorPosturePercentage: m.accountant.PoorPosturePercentage(),
		AlertCount:            m.alertCount,
	}, true
}

// persist queues a store write. The in-memory value stays authoritative; writes
// are dropped when the queue is full.
func (m *Monitor) persist(job func(Store) error) {
	if m.store == nil {
		return
	}
	m.persistMu.RLock()
	defer m.persistMu.RUnlock()
	if m.jobsClosed {
		return
	}
	select {
	case m.jobs <- job:
	default:
		logger.Warn("Persist queue full, dropping write")
	}
}

func (m *Monitor) persister() {
	defer close(m.persistDone)
	for job := range m.jobs {
		if err := job(m.store); err != nil {
			logger.Warn("Failed to persist: %v", err)
		}
	}
}
