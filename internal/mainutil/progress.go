package mainutil

import (
	"fmt"
	"os"
	"time"

	bar "github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// NewConnectProgressBar tracks how many of count configured markets have
// completed their first successful subscribe, so a multi-market startup
// doesn't sit silent while slow venues handshake.
func NewConnectProgressBar(count int, options ...bar.Option) *bar.ProgressBar {
	return bar.NewOptions(count,
		append([]bar.Option{
			bar.OptionSetDescription("connecting markets"),
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
			bar.OptionSetRenderBlankState(true),
			bar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		}, options...)...)
}
