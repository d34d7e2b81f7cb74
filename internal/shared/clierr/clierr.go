// Package clierr classifies errors coming back from the CLI backend.
//
// The backend reports several expected conditions only through free-form
// message text, so matching on substrings is the sole discriminator. Every
// such match lives in the rules table below; nothing else in the module
// inspects backend message text.
package clierr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/grpc/status"
)

// Outcome is what a caller should make of a backend error
type Outcome int

const (
	// OutcomeFailure is a genuine failure that must reach the caller
	OutcomeFailure Outcome = iota
	// OutcomeEmpty means the queried thing does not exist yet: return no results
	OutcomeEmpty
	// OutcomeAlreadyInstalled is an idempotent conflict: treat as success
	OutcomeAlreadyInstalled
	// OutcomeBenign is noise that is never shown to the user
	OutcomeBenign
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeAlreadyInstalled:
		return "already_installed"
	case OutcomeBenign:
		return "benign"
	default:
		return "failure"
	}
}

// ErrNilResponse is returned when the backend answered without a payload
var ErrNilResponse = errors.New("backend returned no response")

// Rule maps a message pattern to an outcome. All listed substrings must
// be present; Pattern, when set, must match as well.
type Rule struct {
	Name       string
	Substrings []string
	Pattern    *regexp.Regexp
	Outcome    Outcome
}

func (r Rule) matches(msg string) bool {
	for _, s := range r.Substrings {
		if !strings.Contains(msg, s) {
			return false
		}
	}
	if r.Pattern != nil && !r.Pattern.MatchString(msg) {
		return false
	}
	return true
}

var (
	platformInstalledRe = regexp.MustCompile(`Platform (\S+)@(\S+) already installed`)
	libraryInstalledRe  = regexp.MustCompile(`Library (.*) is already installed`)
)

// Rules is the complete table of known backend messages, checked in order
var Rules = []Rule{
	{
		Name:       "missing-platform-release",
		Substrings: []string{"missing platform release", "referenced by board"},
		Outcome:    OutcomeEmpty,
	},
	{
		Name:       "platform-not-installed",
		Substrings: []string{"platform", "is not installed"},
		Outcome:    OutcomeEmpty,
	},
	{
		Name:       "unknown-package",
		Substrings: []string{"unknown package"},
		Outcome:    OutcomeEmpty,
	},
	{
		Name:    "platform-already-installed",
		Pattern: platformInstalledRe,
		Outcome: OutcomeAlreadyInstalled,
	},
	{
		Name:    "library-already-installed",
		Pattern: libraryInstalledRe,
		Outcome: OutcomeAlreadyInstalled,
	},
	{
		Name:       "absent-response",
		Substrings: []string{"Cannot read properties of undefined"},
		Outcome:    OutcomeBenign,
	},
}

// Classify returns the outcome for err. A nil error is not classified
// and yields OutcomeFailure so callers check err first.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeFailure
	}
	if errors.Is(err, ErrNilResponse) {
		return OutcomeBenign
	}
	msg := Message(err)
	for _, rule := range Rules {
		if rule.matches(msg) {
			return rule.Outcome
		}
	}
	return OutcomeFailure
}

// IsEmpty reports whether err denotes an expected absence
func IsEmpty(err error) bool {
	return err != nil && Classify(err) == OutcomeEmpty
}

// IsBenign reports whether err belongs to the suppressed noise class
func IsBenign(err error) bool {
	return err != nil && Classify(err) == OutcomeBenign
}

// AlreadyInstalled reports whether err says that id@version is already
// present. Platform messages must name exactly id@version; library
// messages carry no reliable version and match on the pattern alone.
func AlreadyInstalled(err error, id, version string) bool {
	if err == nil {
		return false
	}
	msg := Message(err)
	for _, m := range platformInstalledRe.FindAllStringSubmatch(msg, -1) {
		if m[1] == id && strings.TrimSuffix(m[2], ".") == version {
			return true
		}
	}
	return libraryInstalledRe.MatchString(msg)
}

// Message returns the plain text of err with any gRPC status envelope
// stripped ("rpc error: code = ... desc = ...").
func Message(err error) string {
	if err == nil {
		return ""
	}
	var withStatus interface{ GRPCStatus() *status.Status }
	if errors.As(err, &withStatus) {
		return withStatus.GRPCStatus().Message()
	}
	return err.Error()
}

// Unwrap converts err into a plain error carrying only the backend message
func Unwrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", Message(err))
}
