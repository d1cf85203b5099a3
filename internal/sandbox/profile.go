package sandbox

import (
	"fmt"
	"strings"
)

// LanguageProfile describes how a supported language is written to disk,
// compiled and executed. Profiles are static data loaded once at process
// start; the session state machine itself is language agnostic.
type LanguageProfile struct {
	// The language key that callers use to select this profile, e.g.
	// "python" or "cpp".
	Language string
	// The fixed name of the source file written into the workspace. Using a
	// fixed name keeps the compile and run steps static per language.
	SourceFile string
	// The steps used to compile the source, these are skipped entirely for
	// interpreted languages.
	compileSteps []string
	// The command used to run the compiled artifact or the interpreter,
	// executed with the workspace as the working directory.
	runSteps string
	// Textual patterns whose presence in submitted source causes rejection
	// before anything is spawned. Plain case-sensitive matching, a deterrent
	// rather than a sound sandbox.
	deniedTokens []string
	// Tokens that suggest the program reads standard input, used by the
	// needs-input heuristic exposed to the caller.
	inputHints []string
}

// Compiled reports whether the profile has a separate compile step.
func (p *LanguageProfile) Compiled() bool {
	return len(p.compileSteps) > 0
}

// UnsupportedLanguageError is returned when a request names a language
// outside the closed supported set.
type UnsupportedLanguageError struct {
	Language string
}

func (e UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

// Profiles is the closed set of supported languages. The map is never
// mutated after process start and is the only data shared between
// concurrent sessions.
var Profiles = map[string]*LanguageProfile{
	"python": {
		Language:   "python",
		SourceFile: "main.py",
		runSteps:   "python3 main.py",
		deniedTokens: []string{
			"import os", "from os", "import sys", "from sys",
			"import subprocess", "from subprocess", "import shutil",
			"import socket", "import ctypes", "__import__",
			"eval(", "exec(", "compile(", "open(",
		},
		inputHints: []string{"input("},
	},
	"java": {
		Language:     "java",
		SourceFile:   "Main.java",
		compileSteps: []string{"javac Main.java"},
		runSteps:     "java Main",
		deniedTokens: []string{
			"java.lang.Runtime", "Runtime.getRuntime", "ProcessBuilder",
			"java.lang.reflect", "Class.forName", "java.io.File",
			"java.nio.file", "java.net", "System.exit",
		},
		inputHints: []string{"Scanner", "System.in", "readLine("},
	},
	"c": {
		Language:     "c",
		SourceFile:   "main.c",
		compileSteps: []string{"gcc -O2 -o program main.c"},
		runSteps:     "./program",
		deniedTokens: []string{
			"system(", "popen(", "fork(", "execve", "execl", "execvp",
			"unistd.h", "sys/socket.h", "fopen(", "remove(", "unlink(",
		},
		inputHints: []string{"scanf", "getchar", "fgets(", "gets("},
	},
	"cpp": {
		Language:     "cpp",
		SourceFile:   "main.cpp",
		compileSteps: []string{"g++ -O2 -o program main.cpp"},
		runSteps:     "./program",
		deniedTokens: []string{
			"system(", "popen(", "fork(", "execve", "execl", "execvp",
			"unistd.h", "sys/socket.h", "fstream", "cstdlib", "filesystem",
			"fopen(", "remove(", "unlink(",
		},
		inputHints: []string{"cin >>", "getline(", "scanf"},
	},
}

// ResolveLanguage returns the profile for the given language key.
func ResolveLanguage(language string) (*LanguageProfile, error) {
	if profile, ok := Profiles[strings.ToLower(strings.TrimSpace(language))]; ok {
		return profile, nil
	}

	return nil, UnsupportedLanguageError{Language: language}
}

// NeedsInput reports whether the source likely reads standard input. It is a
// textual hint for callers deciding whether to offer an interactive prompt,
// not a semantic analysis.
func NeedsInput(source string, profile *LanguageProfile) bool {
	for _, hint := range profile.inputHints {
		if strings.Contains(source, hint) {
			return true
		}
	}

	return false
}
