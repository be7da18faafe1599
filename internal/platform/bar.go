package platform

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/crypto/ssh/terminal"
)

// NewProgressBar returns a bar counting completed checks on stderr. The bar
// is silent when visible is false or stderr is not a terminal, so piped
// output and CI logs stay clean.
func NewProgressBar(total int, visible bool) *progressbar.ProgressBar {
	var out io.Writer = os.Stderr
	if !visible || !terminal.IsTerminal(int(os.Stderr.Fd())) {
		out = io.Discard
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Smoke checks"),
		progressbar.OptionSetItsString("check"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish())
	return bar
}
