package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/backoff"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/creds"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/profile"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/ratelimit"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/store"
)

const persistTimeout = 10 * time.Second

type eventKind int

const (
	evOpened eventKind = iota
	evQR
	evClosed
)

// event is one session signal forwarded into the run loop. Events carry
// the attempt id so a superseded attempt cannot touch supervisor state.
type event struct {
	kind    eventKind
	attempt string
	creds   protocol.Credentials
	ref     string
	close   protocol.CloseEvent
}

// attempt is the single in-flight connection. Owned by the run loop.
type attempt struct {
	id      string
	profile profile.Profile
	session protocol.Session
	opened  bool
	qr      int
}

type supervisorMetrics struct {
	opens        int64
	disconnects  int64
	retries      int64
	rotations    int64
	qrChallenges int64
}

// Supervisor maintains one logical gateway connection across an
// unreliable transport. It selects the healthiest identity profile,
// opens a session, and on failure decides between retrying the same
// profile and rotating to another, updating per-profile stats as it
// goes. All state transitions run on a single goroutine; session
// callbacks and timers feed it through an event channel.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	registry *profile.Registry
	scorer   *profile.Scorer
	tracker  *ratelimit.Tracker
	backoff  *backoff.Calculator
	stats    store.Store
	creds    creds.Store
	dialer   protocol.Dialer

	events   chan event
	sessions chan protocol.Session

	// clock and after are injectable so transition tests run without
	// wall-clock waits.
	clock func() time.Time
	after func(time.Duration) <-chan time.Time

	// Run-loop state. Touched only by run() and its helpers.
	attempt      *attempt
	timerC       <-chan time.Time
	retryProfile string
	failures     int

	// Snapshot state for Stats and CurrentSession.
	mu             sync.RWMutex
	state          State
	activeProfile  string
	current        protocol.Session
	connectedSince time.Time
	metrics        supervisorMetrics

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor over the given profiles and
// collaborators. Scoring, rate-limit tracking and backoff are derived
// from cfg.
func NewSupervisor(
	cfg SupervisorConfig,
	registry *profile.Registry,
	stats store.Store,
	credStore creds.Store,
	dialer protocol.Dialer,
	logger *slog.Logger,
) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		scorer:   profile.NewScorer(cfg.RateLimitWindow),
		tracker:  ratelimit.NewTracker(cfg.RateLimitWindow, registry.Names()),
		backoff: &backoff.Calculator{
			ReconnectBase: cfg.ReconnectBaseDelay,
			ReconnectMax:  cfg.ReconnectMaxDelay,
			RateLimitBase: cfg.RateLimitBaseDelay,
			RateLimitMax:  cfg.RateLimitMaxDelay,
		},
		stats:    stats,
		creds:    credStore,
		dialer:   dialer,
		events:   make(chan event, 16),
		sessions: make(chan protocol.Session, 1),
		clock:    time.Now,
		after:    func(d time.Duration) <-chan time.Time { return time.After(d) },
		state:    StateIdle,
	}
}

// Start loads persisted stats and begins supervising. The first
// connection attempt starts immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	saved, err := s.stats.Load(s.ctx)
	if err != nil {
		// Stats are advisory; a fresh slate never blocks startup.
		s.logger.Warn("loading profile stats failed, starting fresh", "error", err)
	} else if len(saved) > 0 {
		s.registry.ApplyStats(saved)
		s.logger.Info("restored profile stats", "profiles", len(saved))
	}

	s.wg.Add(1)
	go s.run()

	s.logger.Info("connection supervisor started",
		"profiles", s.registry.Len(),
		"rate_limit_window", s.cfg.RateLimitWindow,
		"degrade_threshold", s.cfg.DegradeThreshold,
	)
	return nil
}

// Stop shuts the supervisor down, logging out the active session if one
// is open.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.logger.Info("stopping connection supervisor")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("connection supervisor stopped")
	case <-ctx.Done():
		s.logger.Warn("connection supervisor stop timed out")
	}

	return nil
}

// Sessions delivers each newly opened session. The channel holds only
// the most recent session, so a slow consumer never sees a stale one.
func (s *Supervisor) Sessions() <-chan protocol.Session {
	return s.sessions
}

// CurrentSession returns the live session, if any.
func (s *Supervisor) CurrentSession() (protocol.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

// Stats returns a snapshot of supervisor and per-profile health.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.RLock()
	st := SupervisorStats{
		State:          s.state,
		ActiveProfile:  s.activeProfile,
		ConnectedSince: s.connectedSince,
		Opens:          s.metrics.opens,
		Disconnects:    s.metrics.disconnects,
		Retries:        s.metrics.retries,
		Rotations:      s.metrics.rotations,
		QRChallenges:   s.metrics.qrChallenges,
	}
	s.mu.RUnlock()

	now := s.clock()
	for _, p := range s.registry.View() {
		st.Profiles = append(st.Profiles, ProfileStatus{
			Name:                p.Name,
			Score:               s.scorer.Score(p, now),
			Eligible:            s.scorer.Eligible(p, now),
			Degraded:            p.Stats.Degraded(now),
			Attempts:            p.Stats.Attempts,
			SuccessRate:         p.Stats.Performance.SuccessRate,
			ConsecutiveFailures: p.Stats.ConsecutiveFailures,
			RateLimits:          p.Stats.RateLimits,
			WindowSize:          s.tracker.WindowSize(p.Name, now),
		})
	}
	return st
}

// run is the serialized transition loop. Every state change happens
// here, in event order.
func (s *Supervisor) run() {
	defer s.wg.Done()

	persist := time.NewTicker(s.cfg.PersistInterval)
	defer persist.Stop()

	s.connect()

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case <-persist.C:
			s.persist()
		case <-s.timerC:
			s.timerC = nil
			s.connect()
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Supervisor) handle(ev event) {
	a := s.attempt
	if a == nil || ev.attempt != a.id {
		// Stale event from a superseded attempt.
		return
	}

	switch ev.kind {
	case evOpened:
		s.handleOpened(a, ev.creds)
	case evQR:
		s.handleQR(a, ev.ref)
	case evClosed:
		s.attempt = nil
		s.handleClosed(a.profile.Name, ev.close)
	}
}

// connect enters CONNECTING: pick the target profile, load credentials,
// open a session.
func (s *Supervisor) connect() {
	now := s.clock()

	p, ok := s.pickProfile(now)
	if !ok {
		s.setState(StateExhausted, "")
		s.logger.Error("no profiles available, supervisor exhausted")
		return
	}

	s.setState(StateConnecting, p.Name)
	s.registry.UpdateStats(p.Name, func(st *profile.Stats) {
		st.RecordAttempt(now)
	})

	c, err := s.creds.Load(p.CredentialRef)
	switch {
	case errors.Is(err, creds.ErrNotFound):
		// Fresh registration: the gateway answers with QR challenges.
		c = &protocol.Credentials{}
		s.logger.Info("no stored credentials, expecting qr registration", "profile", p.Name)
	case err != nil:
		s.logger.Error("loading credentials failed, rotating", "profile", p.Name, "error", err)
		s.rotate(p.Name)
		return
	}

	sess, err := s.dialer.Open(s.ctx, p.Fingerprint, c)
	if err != nil {
		s.logger.Warn("opening session failed", "profile", p.Name, "error", err)
		s.handleClosed(p.Name, protocol.CloseEvent{Message: err.Error()})
		return
	}

	a := &attempt{id: uuid.NewString(), profile: p, session: sess}
	s.attempt = a
	s.watch(a)

	s.logger.Info("connecting", "profile", p.Name, "registered", c.Registered())
}

// pickProfile returns the pending retry target if one is set, otherwise
// the best eligible profile.
func (s *Supervisor) pickProfile(now time.Time) (profile.Profile, bool) {
	if s.retryProfile != "" {
		if p, ok := s.registry.Get(s.retryProfile); ok {
			return p, true
		}
		s.retryProfile = ""
	}
	return s.scorer.SelectBestEligible(s.registry.View(), now)
}

func (s *Supervisor) handleOpened(a *attempt, refreshed protocol.Credentials) {
	now := s.clock()
	name := a.profile.Name

	a.opened = true
	s.timerC = nil
	s.retryProfile = ""
	s.failures = 0

	s.registry.UpdateStats(name, func(st *profile.Stats) {
		st.RecordSuccess(now)
	})
	s.tracker.Clear(name)

	// The gateway rotates tokens on login; keep the newest set.
	if refreshed.Registered() {
		if err := s.creds.Save(a.profile.CredentialRef, &refreshed); err != nil {
			s.logger.Error("saving refreshed credentials failed", "profile", name, "error", err)
		}
	}
	s.persist()

	s.mu.Lock()
	s.state = StateOpen
	s.activeProfile = name
	s.current = a.session
	s.connectedSince = now
	s.metrics.opens++
	s.mu.Unlock()

	s.publish(a.session)

	s.logger.Info("connection open", "profile", name)
}

func (s *Supervisor) handleQR(a *attempt, ref string) {
	a.qr++

	s.mu.Lock()
	s.metrics.qrChallenges++
	s.mu.Unlock()

	s.logger.Info("qr challenge received",
		"profile", a.profile.Name,
		"count", a.qr,
		"max", s.cfg.MaxQRAttempts,
		"ref", ref,
	)

	if a.qr > s.cfg.MaxQRAttempts {
		s.logger.Warn("qr attempts exceeded, rotating", "profile", a.profile.Name)
		a.session.Close()
		s.attempt = nil
		s.rotate(a.profile.Name)
	}
}

// handleClosed applies the CLOSED(reason) stats update, then decides
// between retrying the same profile and rotating to another.
func (s *Supervisor) handleClosed(name string, ev protocol.CloseEvent) {
	now := s.clock()
	reason := Classify(ev)

	s.mu.Lock()
	s.state = StateClosed
	s.activeProfile = name
	s.current = nil
	s.connectedSince = time.Time{}
	s.metrics.disconnects++
	s.mu.Unlock()

	s.failures++

	var st profile.Stats
	var newlyDegraded bool
	s.registry.UpdateStats(name, func(stats *profile.Stats) {
		newlyDegraded = stats.RecordDisconnect(reason.String(), now, s.cfg.DegradeThreshold, s.cfg.RecoveryTime)
		if reason == ReasonRateLimit {
			stats.RecordRateLimit()
		}
		st = *stats
	})

	if reason == ReasonRateLimit {
		s.tracker.Record(name, ev.StatusCode, now)
	}

	s.persist()

	s.logger.Warn("connection closed",
		"profile", name,
		"reason", reason.String(),
		"status", ev.StatusCode,
		"message", ev.Message,
		"consecutive_failures", st.ConsecutiveFailures,
	)

	switch {
	case reason == ReasonAuthFailure:
		// Credentials are burned; never retried on the same profile.
		s.dropCredentials(name)
		s.rotate(name)
	case newlyDegraded:
		s.setState(StateDegrading, name)
		s.logger.Warn("profile degraded",
			"profile", name,
			"until", st.Performance.DegradedUntil,
			"consecutive_failures", st.ConsecutiveFailures,
		)
		s.rotate(name)
	case reason == ReasonRateLimit:
		s.afterRateLimit(name, st, now)
	case reason == ReasonProtocolError:
		// Transient local fault, retry right away.
		s.retry(name, 0)
	default:
		s.retry(name, s.backoff.Delay(s.failures-1, false))
	}
}

// afterRateLimit escalates to rotation once any throttle threshold is
// met, else retries with the rate-limit backoff curve.
func (s *Supervisor) afterRateLimit(name string, st profile.Stats, now time.Time) {
	windowSize := s.tracker.WindowSize(name, now)
	degraded := st.Degraded(now)

	rotate := st.ConsecutiveFailures >= 2 ||
		windowSize >= 2 ||
		st.RateLimits >= 5 ||
		st.Performance.SuccessRate < 0.3 ||
		degraded

	if rotate {
		s.logger.Warn("rate limit threshold reached, rotating",
			"profile", name,
			"window_size", windowSize,
			"rate_limits", st.RateLimits,
			"success_rate", st.Performance.SuccessRate,
		)
		s.rotate(name)
		return
	}

	mult := st.RateLimits + st.ConsecutiveFailures
	if degraded {
		mult += 5
	}
	if mult > 10 {
		mult = 10
	}
	s.retry(name, s.backoff.Delay(mult, true))
}

// rotate schedules re-selection after a flat base delay. The next
// profile is chosen when the timer fires so eligibility reflects the
// latest stats.
func (s *Supervisor) rotate(from string) {
	s.retryProfile = ""
	s.failures = 0

	s.mu.Lock()
	s.state = StateRotating
	s.activeProfile = from
	s.metrics.rotations++
	s.mu.Unlock()

	s.schedule(s.cfg.ReconnectBaseDelay)
	s.logger.Info("rotating profile", "from", from, "delay", s.cfg.ReconnectBaseDelay)
}

// retry schedules another attempt on the same profile.
func (s *Supervisor) retry(name string, delay time.Duration) {
	s.retryProfile = name

	s.mu.Lock()
	s.state = StateRetrying
	s.activeProfile = name
	s.metrics.retries++
	s.mu.Unlock()

	s.schedule(delay)
	s.logger.Info("retrying profile", "profile", name, "delay", delay)
}

func (s *Supervisor) schedule(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.timerC = s.after(d)
}

// watch forwards session events into the run loop.
func (s *Supervisor) watch(a *attempt) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case c := <-a.session.Opened():
				s.post(event{kind: evOpened, attempt: a.id, creds: c})
			case ref := <-a.session.QR():
				s.post(event{kind: evQR, attempt: a.id, ref: ref})
			case ev := <-a.session.Closed():
				s.post(event{kind: evClosed, attempt: a.id, close: ev})
				return
			case <-a.session.Done():
				// The close event, if any, is buffered before Done
				// closes; prefer it over a synthetic one.
				select {
				case ev := <-a.session.Closed():
					s.post(event{kind: evClosed, attempt: a.id, close: ev})
				default:
					s.post(event{kind: evClosed, attempt: a.id, close: protocol.CloseEvent{Message: "session ended"}})
				}
				return
			}
		}
	}()
}

func (s *Supervisor) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// publish hands the live session to the application, replacing an
// unconsumed older one.
func (s *Supervisor) publish(sess protocol.Session) {
	for {
		select {
		case s.sessions <- sess:
			return
		default:
			select {
			case <-s.sessions:
			default:
			}
		}
	}
}

func (s *Supervisor) dropCredentials(name string) {
	p, ok := s.registry.Get(name)
	if !ok {
		return
	}
	if err := s.creds.Delete(p.CredentialRef); err != nil {
		s.logger.Error("deleting credentials failed", "profile", name, "error", err)
		return
	}
	s.logger.Info("credentials deleted after auth failure", "profile", name)
}

// persist flushes stats. Failures are logged and swallowed: persistence
// must never abort a connection attempt.
func (s *Supervisor) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.stats.Save(ctx, s.registry.Snapshot()); err != nil {
		s.logger.Error("saving profile stats failed", "error", err)
	}
}

// shutdown logs out the active session best-effort and takes a final
// stats snapshot.
func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LogoutTimeout)
	defer cancel()

	if a := s.attempt; a != nil {
		if a.opened {
			if err := a.session.Logout(ctx); err != nil {
				s.logger.Warn("graceful logout failed", "error", err)
				a.session.Close()
			}
		} else {
			a.session.Close()
		}
		s.attempt = nil
	}

	s.mu.Lock()
	s.state = StateIdle
	s.activeProfile = ""
	s.current = nil
	s.connectedSince = time.Time{}
	s.mu.Unlock()

	if err := s.stats.Save(ctx, s.registry.Snapshot()); err != nil {
		s.logger.Error("saving profile stats failed", "error", err)
	}
}

func (s *Supervisor) setState(st State, profileName string) {
	s.mu.Lock()
	s.state = st
	s.activeProfile = profileName
	s.mu.Unlock()
}
