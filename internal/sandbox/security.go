package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxInputLength bounds a single standard-input value supplied by a caller.
const MaxInputLength = 1000

// Violation records which denylist rule a submission matched. It is returned
// to the caller before any workspace or process exists for the request.
//
// The scan is case-sensitive substring matching against the raw text, not a
// semantic analysis: a sufficiently indirect program can still reach the
// filtered operations. This is an accepted residual risk of the design, the
// filter is a deterrent layered under the process timeout, not a proof of
// safety.
type Violation struct {
	Rule        string
	MatchedText string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("submission rejected, matched blocked pattern %q", v.Rule)
}

// control characters other than horizontal tab, including newlines so a
// single input value cannot smuggle extra lines into the child's stdin.
var controlCharacters = regexp.MustCompile(`[\x00-\x08\x0a-\x1f\x7f]`)

// Scan checks submitted source text against the language's denylist.
func Scan(source string, profile *LanguageProfile) *Violation {
	for _, token := range profile.deniedTokens {
		if idx := strings.Index(source, token); idx >= 0 {
			return &Violation{
				Rule:        token,
				MatchedText: matchContext(source, idx, len(token)),
			}
		}
	}

	return nil
}

// ScanInput validates a single standard-input value independently of any
// language, applied before the value is ever written to a child's stdin.
func ScanInput(input string) *Violation {
	if len(input) > MaxInputLength {
		return &Violation{
			Rule:        "max-input-length",
			MatchedText: fmt.Sprintf("%d characters", len(input)),
		}
	}

	if match := controlCharacters.FindString(input); match != "" {
		return &Violation{
			Rule:        "control-characters",
			MatchedText: fmt.Sprintf("%q", match),
		}
	}

	return nil
}

// matchContext returns the matched token with a little surrounding source so
// the caller can see what was rejected without echoing the whole submission.
func matchContext(source string, idx, length int) string {
	start := idx - 10
	if start < 0 {
		start = 0
	}

	end := idx + length + 10
	if end > len(source) {
		end = len(source)
	}

	return strings.TrimSpace(source[start:end])
}
