package log

import (
	"fmt"

	"github.com/go-stack/stack"
)

// callStack renders the caller's stack (skipping this package's own
// frames) for inclusion in Crit-level records, the way a production
// crash report would.
func callStack() string {
	s := stack.Trace().TrimRuntime()
	if len(s) > 3 {
		s = s[3:]
	}
	return fmt.Sprintf("%+v", s)
}
