package mainutil

import (
	"fmt"
	"os"
	"time"

	bar "github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// NewProgressBar draws on stderr when it is a terminal. A count of -1
// shows a spinner instead of a bar.
func NewProgressBar(count int, description string, options ...bar.Option) *bar.ProgressBar {
	return bar.NewOptions(count,
		append([]bar.Option{
			bar.OptionSetDescription(description),
			bar.OptionSetWriter(os.Stderr),
			bar.OptionSetVisibility(term.IsTerminal(int(os.Stderr.Fd()))),
			bar.OptionSetWidth(33),
			bar.OptionThrottle(99 * time.Millisecond),
			bar.OptionSetTheme(bar.Theme{
				Saucer:        "#",
				SaucerPadding: ".",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			bar.OptionSpinnerType(9),
			bar.OptionShowCount(),
			bar.OptionSetItsString("updates"),
			bar.OptionShowIts(),
			bar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		}, options...)...)
}
