package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/teelog/internal/errors"
)

// ReportError prints err for the user and returns the exit status the
// process should end with. A captured command's own failure is passed through
// silently: its output already said what went wrong.
func ReportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	fmt.Fprintf(w, "%s %v\n", errorStyle.Render("Error:"), err)
	if errors.GetSeverity(err) >= errors.SeverityCritical {
		fmt.Fprintln(w, mutedStyle.Render(
			"stdout or stderr may not have been restored; output after this point can still land in the transcript"))
		return exitCritical
	}
	return 1
}

// exitCritical is EX_SOFTWARE: teelog could not put the process's streams
// back the way it found them.
const exitCritical = 70
