package services

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidTransition = errors.New("invalid navigation transition")
	ErrSessionClosed     = errors.New("navigation session closed")
	ErrSessionNotFound   = errors.New("navigation session not found")
	// ErrStartAbandoned is returned by Start when Stop or Close ran before it finished.
	ErrStartAbandoned = errors.New("navigation start abandoned")
)

const (
	DefaultArrivalThresholdKm = 0.05
	DefaultFixTimeout         = 10 * time.Second
)

type NavigationConfig struct {
	ArrivalThresholdKm float64
	// FixTimeout bounds the one-shot position request made by Start.
	FixTimeout time.Duration
	Watch      ports.WatchOptions
}

func (c NavigationConfig) withDefaults() NavigationConfig {
	if c.ArrivalThresholdKm <= 0 {
		c.ArrivalThresholdKm = DefaultArrivalThresholdKm
	}
	if c.FixTimeout <= 0 {
		c.FixTimeout = DefaultFixTimeout
	}
	return c
}

type pendingEvent struct {
	snap    domain.NavigationSnapshot
	arrived bool
}

// NavigationSession tracks one trip from the device position to a fixed
// destination:
//
//	Idle -Start-> Locating -> RouteReady -Begin-> Navigating -> Arrived
//	                  \-> Error               \-> Error
//
// Stop returns Locating, RouteReady and Navigating to Idle and is a no-op
// otherwise. Position updates are consumed by a single goroutine in emission
// order. Snapshots are delivered to listeners in Seq order.
type NavigationSession struct {
	id          string
	userID      string
	destination domain.Coordinate
	geo         ports.GeoLocationSource
	routes      ports.RouteProvider
	cfg         NavigationConfig
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       domain.NavigationState
	position    *domain.Coordinate
	accuracy    float64
	route       *domain.RouteResult
	remainingKm float64
	initialKm   float64
	stepIndex   int
	errCode     domain.PositionErrorCode
	errMsg      string
	seq         uint64
	updatedAt   time.Time
	closed      bool

	// gen changes whenever Stop or Close invalidates in-flight work.
	gen         uint64
	cancelStart context.CancelFunc
	sub         ports.PositionSubscription

	listeners    map[uint64]func(domain.NavigationSnapshot)
	arrival      map[uint64]func(domain.NavigationSnapshot)
	nextListener uint64
	pending      []pendingEvent
	flushing     bool
}

func NewNavigationSession(
	userID string,
	destination domain.Coordinate,
	geo ports.GeoLocationSource,
	routes ports.RouteProvider,
	cfg NavigationConfig,
	log *zap.Logger,
) (*NavigationSession, error) {
	if err := destination.Validate(); err != nil {
		return nil, fmt.Errorf("new navigation session: destination: %w", err)
	}
	if geo == nil || routes == nil {
		return nil, errors.New("new navigation session: geolocation source and route provider are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &NavigationSession{
		id:          id,
		userID:      userID,
		destination: destination,
		geo:         geo,
		routes:      routes,
		cfg:         cfg.withDefaults(),
		log:         log.With(zap.String("session_id", id), zap.String("user_id", userID)),
		ctx:         ctx,
		cancel:      cancel,
		state:       domain.NavIdle,
		updatedAt:   time.Now(),
		listeners:   make(map[uint64]func(domain.NavigationSnapshot)),
		arrival:     make(map[uint64]func(domain.NavigationSnapshot)),
	}, nil
}

func (s *NavigationSession) ID() string     { return s.id }
func (s *NavigationSession) UserID() string { return s.userID }

func (s *NavigationSession) State() domain.NavigationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *NavigationSession) Snapshot() domain.NavigationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every state or progress change. The returned
// function unregisters it.
func (s *NavigationSession) Subscribe(fn func(domain.NavigationSnapshot)) func() {
	return s.register(s.listeners, fn)
}

// OnArrival registers fn to run once when the session reaches Arrived.
func (s *NavigationSession) OnArrival(fn func(domain.NavigationSnapshot)) func() {
	return s.register(s.arrival, fn)
}

func (s *NavigationSession) register(m map[uint64]func(domain.NavigationSnapshot), fn func(domain.NavigationSnapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextListener++
	id := s.nextListener
	m[id] = fn

	return func() {
		s.mu.Lock()
		delete(m, id)
		s.mu.Unlock()
	}
}

// Start requests a position fix and computes the route to the destination.
// It blocks until the session is RouteReady or Error. A concurrent Stop makes
// it return ErrStartAbandoned and its result is discarded.
func (s *NavigationSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != domain.NavIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, state)
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.state = domain.NavLocating
	s.errCode, s.errMsg = "", ""
	s.cancelStart = cancel
	gen := s.gen
	s.emitLocked(false)
	s.mu.Unlock()
	s.flush()

	fix, err := s.geo.CurrentPosition(startCtx, s.cfg.FixTimeout)
	if err == nil {
		if verr := fix.Coordinate.Validate(); verr != nil {
			err = domain.NewPositionError(domain.PositionUnavailable, verr.Error())
		}
	}
	if err != nil {
		return s.failStart(ctx, gen, err)
	}

	route := s.routes.GetRoute(startCtx, fix.Coordinate, s.destination)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrStartAbandoned
	}

	pos := fix.Coordinate
	s.position = &pos
	s.accuracy = fix.AccuracyMeters
	s.route = &route
	s.remainingKm = domain.HaversineKm(pos, s.destination)
	s.initialKm = s.remainingKm
	s.stepIndex = 0
	s.cancelStart = nil
	s.state = domain.NavRouteReady
	s.emitLocked(false)
	s.mu.Unlock()
	s.flush()

	s.log.Info("navigation route ready",
		zap.Float64("distance_km", route.DistanceKm),
		zap.Bool("degraded", route.Degraded),
	)
	return nil
}

func (s *NavigationSession) failStart(ctx context.Context, gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrStartAbandoned
	}
	s.cancelStart = nil

	var pe *domain.PositionError
	switch {
	case errors.As(err, &pe):
	case ctx.Err() != nil:
		// The caller gave up; nothing was learned about the device.
		s.state = domain.NavIdle
		s.emitLocked(false)
		s.mu.Unlock()
		s.flush()
		return ctx.Err()
	default:
		pe = domain.NewPositionError(domain.PositionUnavailable, err.Error())
	}

	s.state = domain.NavError
	s.errCode = pe.Code
	s.errMsg = pe.Guidance()
	s.emitLocked(false)
	s.mu.Unlock()
	s.flush()

	s.log.Info("navigation positioning failed", zap.String("code", string(pe.Code)), zap.Error(pe))
	return pe
}

// Begin opens the continuous position watch and starts tracking progress.
func (s *NavigationSession) Begin() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != domain.NavRouteReady {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, state)
	}

	sub, err := s.geo.Watch(s.ctx, s.cfg.Watch)
	if err != nil {
		var pe *domain.PositionError
		if !errors.As(err, &pe) {
			pe = domain.NewPositionError(domain.PositionUnavailable, err.Error())
		}
		s.state = domain.NavError
		s.errCode = pe.Code
		s.errMsg = pe.Guidance()
		s.emitLocked(false)
		s.mu.Unlock()
		s.flush()
		return pe
	}

	s.sub = sub
	s.state = domain.NavNavigating
	gen := s.gen
	s.emitLocked(false)
	s.mu.Unlock()
	s.flush()

	go s.consume(sub, gen)
	return nil
}

func (s *NavigationSession) consume(sub ports.PositionSubscription, gen uint64) {
	for u := range sub.Updates() {
		if !s.handleUpdate(sub, gen, u) {
			return
		}
	}
}

// handleUpdate applies one position update and reports whether tracking continues.
func (s *NavigationSession) handleUpdate(sub ports.PositionSubscription, gen uint64, u domain.PositionUpdate) bool {
	s.mu.Lock()
	if s.gen != gen || s.state != domain.NavNavigating {
		s.mu.Unlock()
		return false
	}

	if u.Err != nil {
		s.state = domain.NavError
		s.errCode = u.Err.Code
		s.errMsg = u.Err.Guidance()
		s.sub = nil
		s.emitLocked(false)
		s.mu.Unlock()

		sub.Cancel()
		s.flush()
		s.log.Info("navigation positioning failed", zap.String("code", string(u.Err.Code)), zap.Error(u.Err))
		return false
	}

	if err := u.Fix.Coordinate.Validate(); err != nil {
		s.mu.Unlock()
		s.log.Warn("ignoring invalid position fix", zap.Error(err))
		return true
	}

	pos := u.Fix.Coordinate
	s.position = &pos
	s.accuracy = u.Fix.AccuracyMeters
	s.remainingKm = domain.HaversineKm(pos, s.destination)
	s.advanceStepLocked()

	if remaining := s.remainingKm; remaining < s.cfg.ArrivalThresholdKm {
		s.state = domain.NavArrived
		s.sub = nil
		s.emitLocked(true)
		s.mu.Unlock()

		sub.Cancel()
		s.flush()
		s.log.Info("navigation arrived", zap.Float64("remaining_km", remaining))
		return false
	}

	s.emitLocked(false)
	s.mu.Unlock()
	s.flush()
	return true
}

// advanceStepLocked maps travelled progress onto cumulative step distances.
// The pointer only moves forward.
func (s *NavigationSession) advanceStepLocked() {
	if s.route == nil || len(s.route.Steps) == 0 || s.initialKm <= 0 {
		return
	}

	progress := 1 - s.remainingKm/s.initialKm
	if progress <= 0 {
		return
	}
	if progress > 1 {
		progress = 1
	}

	travelled := progress * s.route.TotalStepMeters()
	idx := len(s.route.Steps) - 1
	cumulative := 0.0
	for i, step := range s.route.Steps {
		cumulative += step.DistanceMeters
		if travelled < cumulative {
			idx = i
			break
		}
	}

	if idx > s.stepIndex {
		s.stepIndex = idx
	}
}

// Stop cancels navigation and releases the position watch before returning.
// It is a no-op in Idle, Arrived and Error.
func (s *NavigationSession) Stop() {
	s.mu.Lock()
	switch s.state {
	case domain.NavLocating, domain.NavRouteReady, domain.NavNavigating:
	default:
		s.mu.Unlock()
		return
	}

	s.gen++
	if s.cancelStart != nil {
		s.cancelStart()
		s.cancelStart = nil
	}
	sub := s.sub
	s.sub = nil

	s.state = domain.NavIdle
	s.route = nil
	s.position = nil
	s.accuracy = 0
	s.remainingKm = 0
	s.initialKm = 0
	s.stepIndex = 0
	s.emitLocked(false)
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	s.flush()
	s.log.Info("navigation stopped")
}

// Close stops the session and detaches every listener. Further Start and
// Begin calls return ErrSessionClosed.
func (s *NavigationSession) Close() {
	s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	sub := s.sub
	s.sub = nil
	s.listeners = make(map[uint64]func(domain.NavigationSnapshot))
	s.arrival = make(map[uint64]func(domain.NavigationSnapshot))
	s.pending = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	s.cancel()
}

func (s *NavigationSession) snapshotLocked() domain.NavigationSnapshot {
	snap := domain.NavigationSnapshot{
		SessionID:          s.id,
		UserID:             s.userID,
		Seq:                s.seq,
		State:              s.state,
		Destination:        s.destination,
		AccuracyMeters:     s.accuracy,
		RemainingKm:        s.remainingKm,
		ArrivalThresholdKm: s.cfg.ArrivalThresholdKm,
		StepIndex:          s.stepIndex,
		ErrorCode:          s.errCode,
		ErrorMessage:       s.errMsg,
		UpdatedAt:          s.updatedAt,
	}
	if s.position != nil {
		p := *s.position
		snap.CurrentPosition = &p
	}
	if s.route != nil {
		r := *s.route
		snap.Route = &r
		if s.initialKm > 0 {
			snap.RemainingDurationMin = r.DurationMin * min(s.remainingKm/s.initialKm, 1)
		}
		if s.stepIndex < len(r.Steps) {
			snap.CurrentInstruction = r.Steps[s.stepIndex].Instruction
		}
	}
	return snap
}

func (s *NavigationSession) emitLocked(arrived bool) {
	s.seq++
	s.updatedAt = time.Now()
	s.pending = append(s.pending, pendingEvent{snap: s.snapshotLocked(), arrived: arrived})
}

// flush delivers pending snapshots in order. Only one goroutine delivers at a
// time; a call made while another delivery is running (including from inside a
// listener) leaves its events to that delivery.
func (s *NavigationSession) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true

	for len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]

		fns := make([]func(domain.NavigationSnapshot), 0, len(s.listeners)+len(s.arrival))
		for _, fn := range s.listeners {
			fns = append(fns, fn)
		}
		if ev.arrived {
			for _, fn := range s.arrival {
				fns = append(fns, fn)
			}
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(ev.snap)
		}

		s.mu.Lock()
	}

	s.flushing = false
	s.mu.Unlock()
}
