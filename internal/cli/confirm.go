package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm asks the operator to type "yes". Anything else, including EOF,
// declines.
func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "%s (you must type exactly 'yes') ", warnStyle.Render("Confirm?"))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)) == "yes", nil
}
