package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type WorkspaceSuite struct {
	suite.Suite

	root    string
	profile *LanguageProfile
}

func (s *WorkspaceSuite) SetupTest() {
	s.root = s.T().TempDir()

	profile, err := ResolveLanguage("python")
	s.NoError(err)

	s.profile = profile
}

func (s *WorkspaceSuite) TestNewWorkspace() {
	s.Run("should create the workspace directory", func() {
		workspace, err := NewWorkspace(s.root)
		s.NoError(err)

		stats, statErr := os.Stat(workspace.Path)

		s.NoError(statErr)
		s.True(stats.IsDir())
	})

	s.Run("should give concurrent workspaces distinct paths", func() {
		first, firstErr := NewWorkspace(s.root)
		second, secondErr := NewWorkspace(s.root)

		s.NoError(firstErr)
		s.NoError(secondErr)
		s.NotEqual(first.Path, second.Path)
	})
}

func (s *WorkspaceSuite) TestWriteSource() {
	s.Run("should write the source under the profile file name", func() {
		workspace, err := NewWorkspace(s.root)
		s.NoError(err)

		s.NoError(workspace.WriteSource(s.profile, "print('hello')"))

		content, readErr := os.ReadFile(filepath.Join(workspace.Path, s.profile.SourceFile))

		s.NoError(readErr)
		s.Equal("print('hello')\n", string(content))
	})
}

func (s *WorkspaceSuite) TestRelease() {
	s.Run("should remove the workspace directory", func() {
		workspace, err := NewWorkspace(s.root)
		s.NoError(err)

		s.NoError(workspace.Release())
		s.True(workspace.Released())

		_, statErr := os.Stat(workspace.Path)
		s.True(os.IsNotExist(statErr))
	})

	s.Run("should be safe to release twice", func() {
		workspace, err := NewWorkspace(s.root)
		s.NoError(err)

		s.NoError(workspace.Release())
		s.NoError(workspace.Release())
	})
}

func TestWorkspaceTestSuite(t *testing.T) {
	suite.Run(t, new(WorkspaceSuite))
}
