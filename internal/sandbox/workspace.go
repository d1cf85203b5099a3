package sandbox

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Workspace is the isolated scratch directory owned by exactly one
// execution. Paths are uuid-named so concurrent executions can never share
// or observe each other's files, and a workspace is never reused after its
// owning execution finishes.
type Workspace struct {
	ID        string
	Path      string
	CreatedAt time.Time

	released atomic.Bool
}

// NewWorkspace creates a uniquely named workspace directory under root with
// restrictive permissions.
func NewWorkspace(root string) (*Workspace, error) {
	id := uuid.NewString()
	path := filepath.Join(root, id)

	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to make required directories")
	}

	return &Workspace{
		ID:        id,
		Path:      path,
		CreatedAt: time.Now(),
	}, nil
}

// WriteSource writes the submitted source down as the profile's fixed source
// file name inside the workspace.
func (w *Workspace) WriteSource(profile *LanguageProfile, source string) error {
	sourceFilePath := filepath.Join(w.Path, profile.SourceFile)

	sourceFile, sourceFileErr := os.Create(sourceFilePath)

	if sourceFileErr != nil {
		return errors.Wrap(sourceFileErr, "failed to create source file")
	}

	defer func(sourceFile *os.File) {
		_ = sourceFile.Close()
	}(sourceFile)

	if _, writeErr := sourceFile.WriteString(source + "\n"); writeErr != nil {
		return errors.Wrap(writeErr, "failed to write source code")
	}

	return nil
}

// Release recursively deletes the workspace directory. It is safe to call
// more than once; only the first call performs the removal. Failures are
// logged but never surfaced with path details to callers.
func (w *Workspace) Release() error {
	if !w.released.CompareAndSwap(false, true) {
		return nil
	}

	if removeErr := os.RemoveAll(w.Path); removeErr != nil {
		log.Error().Err(removeErr).Str("workspaceID", w.ID).
			Msg("failed to clean up workspace directory")
		return errors.Wrap(removeErr, "failed to clean up workspace directory")
	}

	return nil
}

// Released reports whether Release has already run.
func (w *Workspace) Released() bool {
	return w.released.Load()
}
