package services

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NavigationManager keeps at most one live session per user and mirrors
// snapshots into an optional NavigationStore.
type NavigationManager struct {
	routes ports.RouteProvider
	store  ports.NavigationStore
	cfg    NavigationConfig
	log    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*NavigationSession
	writers  map[*NavigationSession]*snapshotWriter
}

// NewNavigationManager creates a manager. store may be nil.
func NewNavigationManager(routes ports.RouteProvider, store ports.NavigationStore, cfg NavigationConfig, log *zap.Logger) *NavigationManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &NavigationManager{
		routes:   routes,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*NavigationSession),
		writers:  make(map[*NavigationSession]*snapshotWriter),
	}
}

// Open creates a session for userID fed by geo. An existing session for the
// same user is closed first.
func (m *NavigationManager) Open(userID string, destination domain.Coordinate, geo ports.GeoLocationSource) (*NavigationSession, error) {
	if userID == "" {
		return nil, errors.New("open navigation session: user id is empty")
	}

	sess, err := NewNavigationSession(userID, destination, geo, m.routes, m.cfg, m.log)
	if err != nil {
		return nil, err
	}

	var w *snapshotWriter
	if m.store != nil {
		w = newSnapshotWriter(m.store, m.log)
		go w.run()
		sess.Subscribe(w.offer)
	}

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = sess
	if w != nil {
		m.writers[sess] = w
	}
	prevWriter := m.writers[prev]
	delete(m.writers, prev)
	m.mu.Unlock()

	if prev != nil {
		m.log.Info("replacing navigation session", zap.String("user_id", userID), zap.String("previous_session_id", prev.ID()))
		if prevWriter != nil {
			prevWriter.stop()
		}
		prev.Close()
	}

	return sess, nil
}

// Snapshot returns the latest snapshot for userID from the local session or
// the store.
func (m *NavigationManager) Snapshot(ctx context.Context, userID string) (domain.NavigationSnapshot, error) {
	m.mu.Lock()
	sess := m.sessions[userID]
	m.mu.Unlock()

	if sess != nil {
		return sess.Snapshot(), nil
	}

	if m.store != nil {
		snap, ok, err := m.store.Get(ctx, userID)
		if err != nil {
			return domain.NavigationSnapshot{}, fmt.Errorf("navigation snapshot user=%s: %w", userID, err)
		}
		if ok {
			return snap, nil
		}
	}

	return domain.NavigationSnapshot{}, ErrSessionNotFound
}

// Stop cancels the user's active navigation. Unknown users are a no-op.
func (m *NavigationManager) Stop(userID string) {
	m.mu.Lock()
	sess := m.sessions[userID]
	m.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// Release closes sess and forgets it if it is still the user's current session.
func (m *NavigationManager) Release(ctx context.Context, sess *NavigationSession) {
	sess.Close()

	m.mu.Lock()
	current := m.sessions[sess.UserID()] == sess
	if current {
		delete(m.sessions, sess.UserID())
	}
	w := m.writers[sess]
	delete(m.writers, sess)
	m.mu.Unlock()

	// A save still queued after the delete would resurrect the key.
	if w != nil {
		w.stop()
	}

	if current && m.store != nil {
		if err := m.store.Delete(ctx, sess.UserID()); err != nil {
			m.log.Warn("navigation snapshot delete failed", zap.String("user_id", sess.UserID()), zap.Error(err))
		}
	}
}

// Shutdown closes every session.
func (m *NavigationManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*NavigationSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.Release(ctx, s)
	}
}

// Active reports the number of live sessions.
func (m *NavigationManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

const snapshotSaveTimeout = 2 * time.Second

// snapshotWriter saves a session's snapshots to the store off the session's
// goroutine. Only the newest unsaved snapshot is kept, so a slow store skips
// intermediate states instead of stalling navigation.
type snapshotWriter struct {
	store ports.NavigationStore
	log   *zap.Logger

	mu      sync.Mutex
	pending *domain.NavigationSnapshot

	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func newSnapshotWriter(store ports.NavigationStore, log *zap.Logger) *snapshotWriter {
	return &snapshotWriter{
		store:    store,
		log:      log,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// offer never blocks.
func (w *snapshotWriter) offer(snap domain.NavigationSnapshot) {
	w.mu.Lock()
	w.pending = &snap
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *snapshotWriter) run() {
	defer close(w.finished)

	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
		}

		w.mu.Lock()
		snap := w.pending
		w.pending = nil
		w.mu.Unlock()

		if snap != nil {
			w.save(*snap)
		}
	}
}

func (w *snapshotWriter) save(snap domain.NavigationSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()

	if err := w.store.Save(ctx, snap); err != nil {
		w.log.Warn("navigation snapshot save failed",
			zap.String("user_id", snap.UserID),
			zap.Uint64("seq", snap.Seq),
			zap.Error(err),
		)
	}
}

// stop waits for an in-flight save and drops anything still pending.
func (w *snapshotWriter) stop() {
	w.once.Do(func() { close(w.quit) })
	<-w.finished
}
