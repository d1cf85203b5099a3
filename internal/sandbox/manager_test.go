package sandbox

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ManagerSuite struct {
	suite.Suite

	ctx     context.Context
	root    string
	manager *Manager
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = s.T().TempDir()
	s.manager = NewManager(Config{Root: s.root})
}

func (s *ManagerSuite) TearDownTest() {
	s.manager.Close()
}

// newShortManager returns a manager whose sessions expire quickly, used for
// the timeout classification tests.
func (s *ManagerSuite) newShortManager(timeout time.Duration) *Manager {
	manager := NewManager(Config{
		Root:           s.T().TempDir(),
		SessionTimeout: timeout,
	})

	s.T().Cleanup(manager.Close)

	return manager
}

func (s *ManagerSuite) requireInterpreter() {
	if _, err := exec.LookPath("python3"); err != nil {
		s.T().Skip("python3 is required")
	}
}

func (s *ManagerSuite) requireCompiler() {
	if _, err := exec.LookPath("gcc"); err != nil {
		s.T().Skip("gcc is required")
	}
}

func (s *ManagerSuite) awaitTerminal(session *Session) Response {
	select {
	case <-session.Done():
	case <-time.After(15 * time.Second):
		s.FailNow("session did not reach a terminal state in time")
	}

	return session.Response()
}

func (s *ManagerSuite) TestSubmitCompletesSimpleProgram() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print('hi')",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)

	s.Equal(Completed, resp.Status)
	s.True(resp.Success())
	s.Equal("hi\n", resp.Output)
	s.Empty(resp.OutputErr)
	s.Greater(resp.Runtime, time.Duration(0))
}

func (s *ManagerSuite) TestSubmitIsDeterministicAcrossRuns() {
	s.requireInterpreter()

	source := "for i in range(3):\n    print(i)"

	for run := 0; run < 2; run++ {
		session, err := s.manager.Submit(SubmitRequest{
			Language:   "python",
			SourceCode: source,
		})

		s.NoError(err)

		resp := session.Await(s.ctx)

		s.Equal(Completed, resp.Status)
		s.Equal("0\n1\n2\n", resp.Output)
	}
}

func (s *ManagerSuite) TestSubmitRejectsDeniedSource() {
	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "import os\nprint(os.listdir('/'))",
	})

	s.Nil(session)

	var violation *Violation
	s.ErrorAs(err, &violation)
	s.Equal("import os", violation.Rule)

	// rejection happens before anything touches the filesystem.
	entries, readErr := os.ReadDir(s.root)
	s.NoError(readErr)
	s.Empty(entries)
}

func (s *ManagerSuite) TestSubmitRejectsUnknownLanguage() {
	session, err := s.manager.Submit(SubmitRequest{
		Language:   "ruby",
		SourceCode: "puts 'hello'",
	})

	s.Nil(session)
	s.ErrorAs(err, &UnsupportedLanguageError{})
}

func (s *ManagerSuite) TestSubmitRejectsQueuedInputWithNewline() {
	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print(input())",
		StdinData:  []string{"first\nsecond"},
	})

	s.Nil(session)

	var violation *Violation
	s.ErrorAs(err, &violation)
	s.Equal("control-characters", violation.Rule)
}

func (s *ManagerSuite) TestInteractiveSessionRelaysInputInOrder() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "a = input()\nb = input()\nprint(a + b)",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)

	_, inputErr := s.manager.ProvideInput(session.ID, "foo")
	s.NoError(inputErr)

	resp = session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)

	_, inputErr = s.manager.ProvideInput(session.ID, "bar")
	s.NoError(inputErr)

	resp = session.Await(s.ctx)

	s.Equal(Completed, resp.Status)
	s.Equal("foobar\n", resp.Output)
}

func (s *ManagerSuite) TestPreQueuedInputIsConsumedInOrder() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "a = int(input())\nb = int(input())\nprint(a + b)",
		StdinData:  []string{"3", "4"},
	})

	s.NoError(err)

	resp := session.Await(s.ctx)

	s.Equal(Completed, resp.Status)
	s.Equal("7\n", resp.Output)
}

func (s *ManagerSuite) TestOutputDeltaHandsBackEachByteOnce() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print('before')\nname = input()\nprint('after ' + name)",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)
	s.Equal("before\n", session.TakeOutputDelta())

	_, inputErr := s.manager.ProvideInput(session.ID, "x")
	s.NoError(inputErr)

	resp = session.Await(s.ctx)

	s.Equal(Completed, resp.Status)
	s.Equal("after x\n", session.TakeOutputDelta())
	s.Empty(session.TakeOutputDelta())
}

func (s *ManagerSuite) TestStarvedInputHitsTheDeadline() {
	s.requireInterpreter()

	manager := s.newShortManager(time.Second)

	session, err := manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "name = input()\nprint(name)",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)

	resp = s.awaitTerminal(session)
	s.Equal(TimeLimitExceeded, resp.Status)
}

func (s *ManagerSuite) TestInfiniteLoopHitsTheDeadline() {
	s.requireInterpreter()

	manager := s.newShortManager(time.Second)

	session, err := manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "while True:\n    pass",
	})

	s.NoError(err)

	resp := s.awaitTerminal(session)

	s.Equal(TimeLimitExceeded, resp.Status)
	s.False(resp.Success())
}

func (s *ManagerSuite) TestStopCancelsAnAwaitingSession() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "name = input()\nprint(name)",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)

	stopped, stopErr := s.manager.Stop(session.ID)

	s.NoError(stopErr)
	s.Equal(Cancelled, stopped.Status)

	// a stopped session no longer accepts input even while its result
	// remains addressable for polling.
	_, inputErr := s.manager.ProvideInput(session.ID, "late")
	s.ErrorIs(inputErr, ErrNoSuchSession)

	polled, pollErr := s.manager.Response(session.ID)
	s.NoError(pollErr)
	s.Equal(Cancelled, polled.Status)
}

func (s *ManagerSuite) TestStopReleasesTheWorkspace() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "name = input()\nprint(name)",
	})

	s.NoError(err)

	session.Await(s.ctx)
	session.Stop()

	_, statErr := os.Stat(session.workspace.Path)
	s.True(os.IsNotExist(statErr))
}

func (s *ManagerSuite) TestStopBeforeRunStaysCancelled() {
	// the manager starts the run goroutine after registering the session, so
	// a stop can land before compile or launch ever begins; the cancellation
	// must hold through the late run attempt.
	newStoppedSession := func(language, source string) *Session {
		profile, err := ResolveLanguage(language)
		s.NoError(err)

		workspace, workspaceErr := NewWorkspace(s.root)
		s.NoError(workspaceErr)
		s.NoError(workspace.WriteSource(profile, source))

		session := newSession(&Request{Profile: profile}, workspace, s.manager.cfg)
		session.Stop()

		return session
	}

	s.Run("should hold through a late compile step", func() {
		session := newStoppedSession("c", "int main() { return 0; }")
		s.Equal(Cancelled, session.Response().Status)

		session.run()

		resp := session.Response()
		s.Equal(Cancelled, resp.Status)
		s.True(resp.Status.Terminal())
	})

	s.Run("should hold through a late launch", func() {
		session := newStoppedSession("python", "print('hi')")
		s.Equal(Cancelled, session.Response().Status)

		session.run()

		resp := session.Response()
		s.Equal(Cancelled, resp.Status)
		s.True(resp.Status.Terminal())
	})
}

func (s *ManagerSuite) TestStopDuringCompileKillsTheCompiler() {
	profile := &LanguageProfile{
		Language:     "c",
		SourceFile:   "main.c",
		compileSteps: []string{"sleep 30"},
		runSteps:     "./program",
	}

	workspace, workspaceErr := NewWorkspace(s.root)
	s.NoError(workspaceErr)
	s.NoError(workspace.WriteSource(profile, "int main() { return 0; }"))

	session := newSession(&Request{Profile: profile}, workspace, s.manager.cfg)

	go session.run()

	var pid int

	s.Eventually(func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()

		if session.compileCmd == nil || session.compileCmd.Process == nil {
			return false
		}

		pid = session.compileCmd.Process.Pid
		return true
	}, 5*time.Second, 10*time.Millisecond, "compile step never started")

	session.Stop()

	resp := s.awaitTerminal(session)
	s.Equal(Cancelled, resp.Status)

	// the compiler's process group must be gone, not left running out its
	// own timeout.
	s.Eventually(func() bool {
		return syscall.Kill(-pid, 0) != nil
	}, 5*time.Second, 10*time.Millisecond, "compiler process group survived the stop")
}

func (s *ManagerSuite) TestCapacityLimitRejectsOverflow() {
	s.requireInterpreter()

	manager := NewManager(Config{
		Root:                  s.T().TempDir(),
		MaxConcurrentSessions: 1,
	})

	s.T().Cleanup(manager.Close)

	first, err := manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "name = input()\nprint(name)",
	})

	s.NoError(err)

	_, overflowErr := manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print('hi')",
	})

	s.ErrorIs(overflowErr, ErrCapacity)

	first.Stop()
	s.awaitTerminal(first)
}

func (s *ManagerSuite) TestRuntimeErrorIsClassified() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print('partial')\nraise RuntimeError('boom')",
	})

	s.NoError(err)

	resp := s.awaitTerminal(session)

	s.Equal(RunTimeError, resp.Status)
	s.Equal("partial\n", resp.Output)
	s.Contains(resp.OutputErr, "RuntimeError")
}

func (s *ManagerSuite) TestCompilationFailureCarriesDiagnostics() {
	s.requireCompiler()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "c",
		SourceCode: "int main() { return 0 }",
	})

	s.NoError(err)

	resp := s.awaitTerminal(session)

	s.Equal(CompilationFailed, resp.Status)
	s.NotEmpty(resp.CompilerOutput)
	s.Greater(resp.CompileTime, time.Duration(0))
}

func (s *ManagerSuite) TestCompiledProgramCompletes() {
	s.requireCompiler()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "c",
		SourceCode: "#include <stdio.h>\nint main() { printf(\"hello\\n\"); return 0; }",
	})

	s.NoError(err)

	resp := s.awaitTerminal(session)

	s.Equal(Completed, resp.Status)
	s.Equal("hello\n", resp.Output)
	s.Greater(resp.CompileTime, time.Duration(0))
}

func (s *ManagerSuite) TestResponseForUnknownSession() {
	_, err := s.manager.Response("00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, ErrNoSuchSession)

	_, err = s.manager.Stop("00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, ErrNoSuchSession)
}

func (s *ManagerSuite) TestSweepReapsOverdueSessions() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "name = input()\nprint(name)",
	})

	s.NoError(err)

	resp := session.Await(s.ctx)
	s.Equal(AwaitingInput, resp.Status)

	s.manager.sweep(session.Deadline().Add(time.Minute))

	resp = s.awaitTerminal(session)
	s.Equal(TimeLimitExceeded, resp.Status)
}

func (s *ManagerSuite) TestSweepForgetsRetainedSessions() {
	s.requireInterpreter()

	session, err := s.manager.Submit(SubmitRequest{
		Language:   "python",
		SourceCode: "print('hi')",
	})

	s.NoError(err)
	s.awaitTerminal(session)

	s.manager.sweep(time.Now().Add(s.manager.cfg.SessionRetention + time.Minute))

	_, getErr := s.manager.Response(session.ID)
	s.ErrorIs(getErr, ErrNoSuchSession)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}
