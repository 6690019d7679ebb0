// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package metacog

import "strings"

// GoalClassifier decides whether a goal description should be treated
// as a code-fix goal, gating the evolutionary solver (spec.md §4.5,
// Open Questions). Callers may supply their own; DefaultGoalClassifier
// is the keyword-based policy this package uses when none is given.
type GoalClassifier func(goalDescription string) bool

var defaultCodeFixKeywords = []string{"fix", "bug", "error"}

// DefaultGoalClassifier matches the keyword-based classifier named in
// spec.md's Open Questions: a goal is a code-fix goal if its
// description contains "fix", "bug", or "error" (case-insensitive).
func DefaultGoalClassifier(goalDescription string) bool {
	lower := strings.ToLower(goalDescription)
	for _, kw := range defaultCodeFixKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
