package sandbox

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoSuchSession is returned for unknown or already finished session ids.
var ErrNoSuchSession = errors.New("no such session")

// ErrCapacity is returned when the concurrent session limit is reached.
var ErrCapacity = errors.New("too many concurrent executions")

// Config carries the manager's tunables. The quiescence and prompt windows
// are deliberately configuration rather than constants: blocking-on-input
// detection is an approximation and deployments tune it to their workloads.
type Config struct {
	// Root is the directory under which every workspace is created.
	Root string
	// SessionTimeout is the absolute wall-clock budget per session,
	// measured from creation and never extended by input round trips.
	SessionTimeout time.Duration
	// CompileTimeout bounds the compile step within the session budget.
	CompileTimeout time.Duration
	// QuiescenceWindow is how long a running program must stay silent
	// before it is treated as blocked waiting for input.
	QuiescenceWindow time.Duration
	// PromptWindow is the shortened window applied when the output ends in
	// an unterminated line, which usually means a prompt was printed.
	PromptWindow time.Duration
	// PollInterval is the supervisor's tick for observing the child.
	PollInterval time.Duration
	// MaxConcurrentSessions caps in-flight sessions across the process.
	MaxConcurrentSessions int
	// SessionRetention is how long a finished session stays addressable
	// for result polling before the janitor forgets it.
	SessionRetention time.Duration
	// JanitorInterval is the sweep cadence for abandoned sessions.
	JanitorInterval time.Duration
}

// WithDefaults fills unset fields with the default configuration.
func (c Config) WithDefaults() Config {
	if c.Root == "" {
		c.Root = filepath.Join(os.TempDir(), "executions")
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = 10 * time.Second
	}
	if c.QuiescenceWindow <= 0 {
		c.QuiescenceWindow = 250 * time.Millisecond
	}
	if c.PromptWindow <= 0 {
		c.PromptWindow = 100 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 25 * time.Millisecond
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = 32
	}
	if c.SessionRetention <= 0 {
		c.SessionRetention = 2 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Second
	}

	return c
}

// Manager is the process-wide registry of execution sessions. The external
// boundary is call-by-call, so every in-flight session must be addressable
// by its opaque id between calls; the manager owns that mapping together
// with the concurrency limiter and the janitor that reaps sessions nobody
// polls again.
type Manager struct {
	cfg Config

	// the limiter is a buffered channel used to bound the number of
	// concurrently running sessions; a slot is taken on submit and released
	// when the session reaches a terminal state.
	limiter  chan string
	sessions sync.Map

	// OnSubmit and OnTerminal, when set before any submission, are invoked
	// once per session at launch and once with its terminal snapshot. The
	// boundary uses them for audit persistence and eventing; the engine
	// itself touches no store.
	OnSubmit   func(Response)
	OnTerminal func(Response)

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a session manager and starts its janitor sweep.
func NewManager(cfg Config) *Manager {
	cfg = cfg.WithDefaults()

	m := &Manager{
		cfg:         cfg,
		limiter:     make(chan string, cfg.MaxConcurrentSessions),
		stopJanitor: make(chan struct{}),
	}

	go m.janitor()

	return m
}

// SubmitRequest is the boundary-facing form of an execution request, before
// language resolution and security scanning.
type SubmitRequest struct {
	Language   string
	SourceCode string
	StdinData  []string
}

// Submit validates, scans and launches a new execution session. Security and
// language failures are detected before any workspace or process exists. The
// returned session runs independently of the submitting call; use
// Session.Await to block on its progress.
func (m *Manager) Submit(direct SubmitRequest) (*Session, error) {
	profile, resolveErr := ResolveLanguage(direct.Language)
	if resolveErr != nil {
		return nil, resolveErr
	}

	if violation := Scan(direct.SourceCode, profile); violation != nil {
		log.Warn().Str("language", profile.Language).
			Str("rule", violation.Rule).
			Msg("submission rejected by security filter")
		return nil, violation
	}

	for _, value := range direct.StdinData {
		if violation := ScanInput(value); violation != nil {
			return nil, violation
		}
	}

	id := uuid.NewString()

	select {
	case m.limiter <- id:
	default:
		return nil, ErrCapacity
	}

	workspace, workspaceErr := NewWorkspace(m.cfg.Root)
	if workspaceErr != nil {
		<-m.limiter
		return nil, workspaceErr
	}

	if writeErr := workspace.WriteSource(profile, direct.SourceCode); writeErr != nil {
		_ = workspace.Release()
		<-m.limiter
		return nil, writeErr
	}

	request := &Request{
		ID:         id,
		SourceCode: direct.SourceCode,
		Profile:    profile,
		StdinData:  direct.StdinData,
	}

	session := newSession(request, workspace, m.cfg)
	m.sessions.Store(session.ID, session)

	log.Info().Object("request", request).Msg("starting execution session")

	if m.OnSubmit != nil {
		m.OnSubmit(session.Response())
	}

	go func() {
		session.run()
		<-session.Done()
		<-m.limiter

		if m.OnTerminal != nil {
			m.OnTerminal(session.Response())
		}
	}()

	return session, nil
}

// Get returns the live session for the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	if value, ok := m.sessions.Load(id); ok {
		return value.(*Session), true
	}

	return nil, false
}

// ProvideInput scans and queues one input value for the session. A finished
// or unknown session id fails with ErrNoSuchSession so callers cannot feed a
// process that no longer exists.
func (m *Manager) ProvideInput(id string, value string) (*Session, error) {
	session, ok := m.Get(id)
	if !ok {
		return nil, ErrNoSuchSession
	}

	if violation := ScanInput(value); violation != nil {
		return nil, violation
	}

	if err := session.ProvideInput(value); err != nil {
		return nil, err
	}

	return session, nil
}

// Stop cancels the session from any non-terminal state.
func (m *Manager) Stop(id string) (Response, error) {
	session, ok := m.Get(id)
	if !ok {
		return Response{}, ErrNoSuchSession
	}

	session.Stop()

	return session.Response(), nil
}

// Response returns the current snapshot for the session id.
func (m *Manager) Response(id string) (Response, error) {
	session, ok := m.Get(id)
	if !ok {
		return Response{}, ErrNoSuchSession
	}

	return session.Response(), nil
}

// janitor periodically reaps sessions that outlived their deadline without
// anyone polling them, and forgets finished sessions after the retention
// period. This guards against abandoned interactive sessions leaking
// processes and workspaces.
func (m *Manager) janitor() {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopJanitor:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.sessions.Range(func(key, value any) bool {
		session := value.(*Session)
		resp := session.Response()

		if !resp.Status.Terminal() {
			if now.After(session.Deadline().Add(m.cfg.JanitorInterval)) {
				log.Warn().Str("sessionID", session.ID).
					Msg("janitor reaping overdue session")
				session.expire()
			}
			return true
		}

		session.mu.Lock()
		finishedAt := session.finishedAt
		session.mu.Unlock()

		if now.Sub(finishedAt) > m.cfg.SessionRetention {
			m.sessions.Delete(key)
		}

		return true
	})
}

// Close stops the janitor and cancels every live session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopJanitor)
	})

	m.sessions.Range(func(key, value any) bool {
		value.(*Session).Stop()
		return true
	})
}
