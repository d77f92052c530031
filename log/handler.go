package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
)

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgHiRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// terminalHandler renders records as a single colorized line, the way
// the teacher's CLI output formats level prefixes. Color is disabled
// automatically when the output isn't a terminal.
type terminalHandler struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewTerminalHandler wraps w (auto-detecting Windows console escaping
// via go-colorable, and TTY-ness via go-isatty to decide whether to
// emit ANSI color codes at all).
func NewTerminalHandler(w io.Writer) Handler {
	out := w
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		out = colorable.NewColorable(f)
	}
	return &terminalHandler{out: out, color: useColor}
}

func (h *terminalHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	prefix := fmt.Sprintf("%-5s", r.Lvl.String())
	if h.color {
		if c, ok := levelColor[r.Lvl]; ok {
			prefix = c.Sprint(prefix)
		}
	}
	line := fmt.Sprintf("%s[%s] %s%s\n", prefix, r.Time.Format("01-02|15:04:05.000"), r.Msg, fmtKV(r.Ctx))
	if r.Stack != "" {
		line += r.Stack + "\n"
	}
	_, err := io.WriteString(h.out, line)
	return err
}

// DiscardHandler drops every record; useful for tests that only care
// about return values, not log output.
func DiscardHandler() Handler { return discardHandler{} }

type discardHandler struct{}

func (discardHandler) Log(*Record) error { return nil }
