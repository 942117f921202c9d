package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rflorenc/esmigrate/internal/models"
)

var (
	green  = lipgloss.Color("#10B981")
	yellow = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	muted  = lipgloss.Color("#6B7280")

	okStyle     = lipgloss.NewStyle().Foreground(green)
	warnStyle   = lipgloss.NewStyle().Foreground(yellow)
	errStyle    = lipgloss.NewStyle().Foreground(red)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Underline(true)

	actionCol = lipgloss.NewStyle().Width(10)
)

// console serialises log lines and the progress bar on one writer. The bar
// occupies the last line and is redrawn after every log line.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	bar     progress.Model
	barLine string
}

func newConsole(out io.Writer) *console {
	return &console{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Log prints one line above the progress bar.
func (c *console) Log(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearBar()
	fmt.Fprintln(c.out, styleLogLine(line))
	c.drawBar()
}

// Progress redraws the bar.
func (c *console) Progress(p models.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearBar()
	c.barLine = fmt.Sprintf("%s %s/%s docs, %d/%d indexes",
		c.bar.ViewAs(p.Ratio), humanize.Comma(p.Documents), humanize.Comma(p.Total), p.Finished(), p.Expected)
	c.drawBar()
}

// Done leaves the bar on screen and moves past it.
func (c *console) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.barLine != "" {
		fmt.Fprintln(c.out)
		c.barLine = ""
	}
}

func (c *console) clearBar() {
	if c.barLine != "" {
		fmt.Fprint(c.out, "\r\033[2K")
	}
}

func (c *console) drawBar() {
	if c.barLine != "" {
		fmt.Fprint(c.out, "\r"+c.barLine)
	}
}

// styleLogLine colours the engine's status lines.
func styleLogLine(line string) string {
	switch {
	case strings.HasPrefix(line, "WARNING"):
		return warnStyle.Render(line)
	case strings.HasPrefix(line, "  FAIL"):
		return errStyle.Render(line)
	case strings.HasPrefix(line, "  SKIP"):
		return mutedStyle.Render(line)
	}
	return line
}

// printPlan renders the pending actions. It returns false if there is
// nothing to do.
func printPlan(w io.Writer, plan *models.MigrationPlan, autoConfirm bool) bool {
	if unhealthy := plan.SkippedFor(models.SkipUnhealthy); len(unhealthy) > 0 {
		names := make([]string, 0, len(unhealthy))
		for _, s := range unhealthy {
			names = append(names, s.Name)
		}
		fmt.Fprintf(w, "%s\n\t%s\n%s\n", warnStyle.Render("Not green:"),
			strings.Join(names, "\n\t"), warnStyle.Render("Skipping..."))
	}

	if plan.Empty() {
		fmt.Fprintln(w, okStyle.Render("Nothing to do"))
		return false
	}

	if autoConfirm {
		fmt.Fprintln(w, okStyle.Render("Pending actions:"))
	} else {
		fmt.Fprintln(w, warnStyle.Render("Please confirm these actions will be performed on "+boldStyle.Render(plan.Destination)))
	}
	fmt.Fprintln(w, headerStyle.Render(actionCol.Render("ACTION")+"INDEX"))
	row := func(action string, style lipgloss.Style, index string) {
		fmt.Fprintln(w, actionCol.Render(style.Render(action))+index)
	}
	for _, name := range plan.ToRemove {
		row("REMOVE", errStyle, name)
	}
	for _, name := range plan.ToTruncate {
		row("TRUNCATE", warnStyle, name)
	}
	for _, name := range plan.ToCopy {
		row("COPY", okStyle, fmt.Sprintf("%s %s", name, mutedStyle.Render("("+humanize.Comma(plan.Documents[name])+" docs)")))
	}
	return true
}

// printReport renders the outcome of a run.
func printReport(w io.Writer, report *models.RunReport) {
	failed := report.Failed()
	if len(failed) == 0 {
		fmt.Fprintln(w, okStyle.Render("Complete"))
	} else {
		fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("Complete with %d failure(s)", len(failed))))
		for _, r := range failed {
			fmt.Fprintf(w, "  %s %s: %s\n", errStyle.Render(strings.ToUpper(string(r.Action))), r.Index, r.Error)
		}
	}
	fmt.Fprintf(w, "Total time: %dms\n", report.Elapsed().Milliseconds())
}
