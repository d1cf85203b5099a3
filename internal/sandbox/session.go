package sandbox

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Request describes a single execution: the source to run, the language
// profile to run it with and any standard-input values supplied up front.
type Request struct {
	// The internal id of the request, this will be used as the opaque
	// session id that callers reference across interactions.
	ID string
	// The source code that will be written into the workspace and executed.
	SourceCode string
	// The resolved language profile for the request.
	Profile *LanguageProfile
	// Standard-input values queued before the program starts. They are
	// consumed strictly in the order supplied, and only once the running
	// program has actually gone quiet waiting for input.
	StdinData []string
}

func (r *Request) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", r.ID).
		Str("language", r.Profile.Language).
		Bool("compiled", r.Profile.Compiled()).
		Int("queuedInputs", len(r.StdinData))
}

// Response is the terminal or in-flight snapshot of a session handed back to
// the caller. Success is true only for a clean exit; every failure kind
// carries exactly one classification through Status.
type Response struct {
	ID             string
	Language       string
	Status         Status
	Output         string
	OutputErr      string
	CompilerOutput string

	// The complete runtime of the program.
	Runtime time.Duration
	// The complete compile time (zero for interpreted languages).
	CompileTime time.Duration
}

// Success reports whether the execution finished cleanly.
func (r Response) Success() bool {
	return r.Status == Completed
}

// Session bridges one long-lived child process to a sequence of discrete
// caller interactions. It owns the process handle and the workspace for its
// whole lifetime; both are disposed exactly once on entry to any terminal
// state. All mutable state is guarded by a single mutex shared between the
// output reader, the supervisor loop and external calls.
type Session struct {
	ID      string
	profile *LanguageProfile

	workspace *Workspace
	cfg       Config

	mu             sync.Mutex
	status         Status
	pending        []string
	output         bytes.Buffer
	outputErr      bytes.Buffer
	compilerOutput string
	delivered      int
	notify         chan struct{}

	cmd        *exec.Cmd
	compileCmd *exec.Cmd
	stdin      io.WriteCloser

	started    time.Time
	deadline   time.Time
	lastOutput time.Time
	runStart   time.Time

	runtime     time.Duration
	compileTime time.Duration
	finishedAt  time.Time

	exitErr error
	exited  chan struct{}
	readers sync.WaitGroup

	stopRequested atomic.Bool
	expired       atomic.Bool

	terminalOnce sync.Once
	done         chan struct{}
}

func newSession(request *Request, workspace *Workspace, cfg Config) *Session {
	now := time.Now()

	id := request.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		ID:        id,
		profile:   request.Profile,
		workspace: workspace,
		cfg:       cfg,
		status:    NotRan,
		pending:   append([]string(nil), request.StdinData...),
		notify:    make(chan struct{}),
		started:   now,
		deadline:  now.Add(cfg.SessionTimeout),
		exited:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Done is closed once the session has reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Deadline returns the absolute wall-clock deadline for the session. It is
// fixed at creation and never extended by input round trips.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// errFinished reports that the session reached a terminal state before the
// program could be started, through a stop or janitor expiry racing the run
// goroutine. The terminal classification already in place wins.
var errFinished = errors.New("session already finished")

// run drives the session from NotRan through compile and run to a terminal
// state. It is started exactly once by the manager and deliberately does not
// take the submitting call's context: the session outlives the request that
// created it.
func (s *Session) run() {
	if s.profile.Compiled() {
		if !s.compile() {
			return
		}
	}

	if err := s.launch(); err != nil {
		if errors.Is(err, errFinished) {
			return
		}

		log.Error().Err(err).Str("sessionID", s.ID).
			Msg("failed to start program")
		s.finish(SandboxFailure)
		return
	}

	s.supervise()
}

// compile runs the profile's compile steps with a bounded slice of the
// session deadline. Each step runs in its own process group and is recorded
// on the session while it lives, so a stop or expiry lands on the compiler
// too. Returns false if the session reached a terminal state.
func (s *Session) compile() bool {
	if !s.setStatus(Compiling) {
		return false
	}

	slice := s.cfg.CompileTimeout
	if remaining := time.Until(s.deadline); remaining < slice {
		slice = remaining
	}

	ctx, cancel := context.WithTimeout(context.Background(), slice)
	defer cancel()

	start := time.Now()

	for _, step := range s.profile.compileSteps {
		command := strings.Fields(step)
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = s.workspace.Path
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		var combined bytes.Buffer
		cmd.Stdout = &combined
		cmd.Stderr = &combined

		if startErr := cmd.Start(); startErr != nil {
			s.mu.Lock()
			terminal := s.status.Terminal()
			s.mu.Unlock()

			if !terminal {
				log.Error().Err(startErr).Str("sessionID", s.ID).
					Msg("failed to start compiler")
				s.finish(SandboxFailure)
			}

			return false
		}

		s.mu.Lock()
		s.compileCmd = cmd
		s.mu.Unlock()

		waitErr := cmd.Wait()

		s.mu.Lock()
		s.compileCmd = nil
		s.compilerOutput += combined.String()
		s.compileTime = time.Since(start)
		terminal := s.status.Terminal()
		s.mu.Unlock()

		// a stop or janitor expiry landed while the compiler ran; that
		// classification wins.
		if terminal {
			return false
		}

		if ctx.Err() == context.DeadlineExceeded {
			// reap any helper processes the compiler spawned.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			s.finish(TimeLimitExceeded)
			return false
		}

		if waitErr != nil {
			// classification keys on the compiler's exit code alone;
			// warnings printed to stderr with a zero exit count as success.
			s.finish(CompilationFailed)
			return false
		}
	}

	return true
}

// launch starts the program with a pipe wired to each of stdin, stdout and
// stderr. The child is placed in its own process group so the whole tree can
// be reaped on timeout or cancellation.
func (s *Session) launch() error {
	command := strings.Fields(s.profile.runSteps)

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = s.workspace.Path
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, stdinErr := cmd.StdinPipe()
	if stdinErr != nil {
		return errors.Wrap(stdinErr, "failed to open stdin pipe")
	}

	stdout, stdoutErr := cmd.StdoutPipe()
	if stdoutErr != nil {
		return errors.Wrap(stdoutErr, "failed to open stdout pipe")
	}

	stderr, stderrErr := cmd.StderrPipe()
	if stderrErr != nil {
		return errors.Wrap(stderrErr, "failed to open stderr pipe")
	}

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return errFinished
	}
	s.mu.Unlock()

	if startErr := cmd.Start(); startErr != nil {
		s.mu.Lock()
		terminal := s.status.Terminal()
		s.mu.Unlock()

		// the workspace may already be gone when a stop raced the start.
		if terminal {
			return errFinished
		}

		return errors.Wrap(startErr, "failed to start command")
	}

	now := time.Now()

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()

		// a stop landed while the process was starting; reap it before it
		// runs any further.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		_ = stdin.Close()

		go func() {
			_ = cmd.Wait()
		}()

		return errFinished
	}

	s.cmd = cmd
	s.stdin = stdin
	s.status = Running
	s.runStart = now
	s.lastOutput = now
	s.broadcastLocked()
	s.mu.Unlock()

	s.readers.Add(2)
	go s.consume(stdout, &s.output)
	go s.consume(stderr, &s.outputErr)

	go func() {
		// readers must drain before Wait closes the pipes under them.
		s.readers.Wait()
		waitErr := cmd.Wait()

		s.mu.Lock()
		s.exitErr = waitErr
		s.runtime = time.Since(s.runStart)
		s.mu.Unlock()

		close(s.exited)
	}()

	return nil
}

// consume appends child output to dst in the exact byte order produced.
func (s *Session) consume(r io.Reader, dst *bytes.Buffer) {
	defer s.readers.Done()

	buf := make([]byte, 4096)

	for {
		n, readErr := r.Read(buf)

		if n > 0 {
			s.mu.Lock()
			dst.Write(buf[:n])
			s.lastOutput = time.Now()
			s.broadcastLocked()
			s.mu.Unlock()
		}

		if readErr != nil {
			return
		}
	}
}

// supervise watches the running process for exit, deadline expiry and the
// quiescence signal that the program is blocked waiting for input.
func (s *Session) supervise() {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.exited:
			s.finish(s.classifyExit())
			return

		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// tick performs one supervisor pass, returning false once the session has
// reached a terminal state.
func (s *Session) tick() bool {
	now := time.Now()

	s.mu.Lock()

	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}

	if now.After(s.deadline) {
		s.mu.Unlock()
		s.expire()
		return false
	}

	if !s.quiescentLocked(now) {
		s.mu.Unlock()
		return true
	}

	if len(s.pending) == 0 {
		if s.status == Running {
			s.status = AwaitingInput
			s.broadcastLocked()
			log.Debug().Str("sessionID", s.ID).Msg("session awaiting input")
		}
		s.mu.Unlock()
		return true
	}

	value := s.pending[0]
	s.pending = s.pending[1:]
	s.status = Running
	s.lastOutput = now
	stdin := s.stdin
	s.broadcastLocked()
	s.mu.Unlock()

	// write outside the lock, the child may be slow to drain its stdin.
	if _, writeErr := io.WriteString(stdin, value+"\n"); writeErr != nil {
		log.Debug().Err(writeErr).Str("sessionID", s.ID).
			Msg("failed to write input to program")
	}

	return true
}

// quiescentLocked reports whether the program has been silent long enough to
// be treated as blocked on input. This is inherently heuristic: there is no
// portable way to observe a blocked read syscall, so a silent but busy
// program can be misclassified. A trailing unterminated line (a prompt) is
// taken as a stronger signal and shortens the window.
func (s *Session) quiescentLocked(now time.Time) bool {
	if s.status != Running && s.status != AwaitingInput {
		return false
	}

	idle := now.Sub(s.lastOutput)

	if b := s.output.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		return idle >= s.cfg.PromptWindow
	}

	return idle >= s.cfg.QuiescenceWindow
}

// classifyExit maps the observed process exit to a terminal status, taking
// into account kills we issued ourselves.
func (s *Session) classifyExit() Status {
	if s.stopRequested.Load() {
		return Cancelled
	}

	if s.expired.Load() || time.Now().After(s.deadline) {
		return TimeLimitExceeded
	}

	s.mu.Lock()
	exitErr := s.exitErr
	s.mu.Unlock()

	if exitErr != nil {
		return RunTimeError
	}

	return Completed
}

// ProvideInput appends a caller-supplied value to the pending-input queue.
// The supervisor writes it to the child only once the program is actually
// waiting, preserving FIFO order with any values queued before it.
func (s *Session) ProvideInput(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return ErrNoSuchSession
	}

	s.pending = append(s.pending, value)
	s.broadcastLocked()

	return nil
}

// Stop forces the session into the Cancelled terminal state from any
// non-terminal state, killing the whole process group immediately.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.stopRequested.Store(true)
	s.kill()
	s.finish(Cancelled)
}

// expire forces the session into TimeLimitExceeded; used by the supervisor
// and by the manager's janitor for abandoned sessions.
func (s *Session) expire() {
	s.expired.Store(true)
	s.kill()
	s.finish(TimeLimitExceeded)
}

// kill signals the whole process group of whichever child is alive, the
// compiler included, reaping helper processes it may have spawned and not
// just the top-level pid.
func (s *Session) kill() {
	s.mu.Lock()
	cmd := s.cmd
	if cmd == nil {
		cmd = s.compileCmd
	}
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	// negative pid addresses the process group created at launch.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// finish transitions the session into a terminal state. The body runs
// exactly once regardless of which actor observed the end first; later
// callers with a different classification are ignored.
func (s *Session) finish(status Status) {
	s.terminalOnce.Do(func() {
		s.mu.Lock()
		s.status = status
		s.finishedAt = time.Now()
		if !s.runStart.IsZero() && s.runtime == 0 {
			s.runtime = s.finishedAt.Sub(s.runStart)
		}
		stdin := s.stdin
		s.cmd = nil
		s.compileCmd = nil
		s.stdin = nil
		s.broadcastLocked()
		s.mu.Unlock()

		if stdin != nil {
			_ = stdin.Close()
		}

		_ = s.workspace.Release()

		close(s.done)

		log.Info().
			Str("sessionID", s.ID).
			Str("language", s.profile.Language).
			Str("status", status.String()).
			Dur("runtime", s.runtime).
			Dur("compileTime", s.compileTime).
			Msg("session reached terminal state")
	})
}

// Response returns the current snapshot of the session.
func (s *Session) Response() Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.responseLocked()
}

func (s *Session) responseLocked() Response {
	return Response{
		ID:             s.ID,
		Language:       s.profile.Language,
		Status:         s.status,
		Output:         s.output.String(),
		OutputErr:      s.outputErr.String(),
		CompilerOutput: s.compilerOutput,
		Runtime:        s.runtime,
		CompileTime:    s.compileTime,
	}
}

// TakeOutputDelta returns the output produced since the previous call and
// advances the delivery cursor, so a stateless caller polling across
// requests sees each byte exactly once and in order.
func (s *Session) TakeOutputDelta() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.output.Bytes()
	delta := string(full[s.delivered:])
	s.delivered = len(full)

	return delta
}

// Await blocks until the session reaches a terminal state or is waiting for
// input it does not have, whichever happens first. It never blocks past the
// session's remaining deadline plus a small classification grace.
func (s *Session) Await(ctx context.Context) Response {
	for {
		s.mu.Lock()

		settled := s.status.Terminal() ||
			(s.status == AwaitingInput && len(s.pending) == 0)

		if settled {
			resp := s.responseLocked()
			s.mu.Unlock()
			return resp
		}

		watch := s.notify
		s.mu.Unlock()

		grace := 2 * s.cfg.PollInterval
		timer := time.NewTimer(time.Until(s.deadline) + grace)

		select {
		case <-ctx.Done():
			timer.Stop()
			return s.Response()
		case <-watch:
			timer.Stop()
		case <-timer.C:
			return s.Response()
		}
	}
}

// setStatus updates the session status under the lock and wakes waiters. A
// session that already reached a terminal state is never moved out of it;
// the write is dropped and false returned.
func (s *Session) setStatus(status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}

	s.status = status
	s.broadcastLocked()

	return true
}

// broadcastLocked wakes every Await waiter. Callers must hold s.mu.
func (s *Session) broadcastLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
