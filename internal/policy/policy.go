// Package policy makes the post-authentication allow/deny decision from
// configured email lists.
package policy

import (
	"github.com/dgellow/forward-auth/internal/emailutil"
)

// Evaluator holds the allow and deny lists, immutable after construction
type Evaluator struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

// New builds an evaluator from allow/deny email lists. Entries are
// normalized (lowercased, trimmed) for comparison.
func New(allow, deny []string) *Evaluator {
	return &Evaluator{
		allow: toSet(allow),
		deny:  toSet(deny),
	}
}

func toSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[emailutil.Normalize(e)] = struct{}{}
	}
	return set
}

// Decide reports whether the authenticated email may access the backend.
//
// Precedence, in order:
//  1. non-empty deny list without a matching entry grants access,
//     regardless of the allow list
//  2. non-empty allow list with a matching entry grants access
//  3. both lists empty grants access
//  4. everything else is denied
//
// An email present in both lists is therefore denied unless rule 1 already
// granted it. That quirk is load-bearing for existing deployments and is
// kept as-is rather than reinterpreted.
func (e *Evaluator) Decide(email string) bool {
	email = emailutil.Normalize(email)

	if len(e.deny) > 0 {
		if _, denied := e.deny[email]; !denied {
			return true
		}
	}
	if len(e.allow) > 0 {
		if _, allowed := e.allow[email]; allowed {
			return true
		}
	}
	if len(e.allow) == 0 && len(e.deny) == 0 {
		return true
	}
	return false
}
