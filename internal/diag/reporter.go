package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats *Error values for the terminal: a bold colored header,
// a dimmed context note block, and the failing annotation's rendered
// string instead of a source line, since the object of a proof failure
// is a symbolic state rather than a span of source text.
type Reporter struct {
	function string
}

func NewReporter(function string) *Reporter {
	return &Reporter{function: function}
}

// Format renders err for terminal output.
func (r *Reporter) Format(err *Error) string {
	var b strings.Builder

	bold := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(&b, "%s[%s]: %s\n", bold("error"), err.Kind, err.Message)
	if err.Function != "" {
		fmt.Fprintf(&b, "  %s %s\n", dim("-->"), err.Function)
	}
	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		fmt.Fprintf(&b, "  %s %s %s\n", dim("|"), noteColor("note:"), note)
	}
	return b.String()
}

// Success renders the pass banner for the CLI.
func Success(subject string) string {
	return color.GreenString("verified: %s", subject)
}

// Failure renders a one-line failure banner for the CLI.
func Failure(subject string) string {
	return color.RedString("verification failed: %s", subject)
}
