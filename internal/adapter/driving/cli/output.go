package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

// structured writes data as JSON or YAML. It reports false for table output,
// which each command renders itself.
func (c *cli) structured(data any) (bool, error) {
	switch c.output {
	case outputJSON:
		enc := json.NewEncoder(c.out())
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case outputYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, fmt.Errorf("encode yaml: %w", err)
		}
		_, err = c.out().Write(out)
		return true, err
	default:
		return false, nil
	}
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out(), 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Prompter reads one secret value. label is shown without a trailing colon.
type Prompter func(label string) (string, error)

// terminalPrompter reads without echo when in is a terminal and reads one
// line otherwise, so secrets can be piped in by scripts.
func terminalPrompter(in *os.File, errOut io.Writer) Prompter {
	var lines *bufio.Reader
	return func(label string) (string, error) {
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprintf(errOut, "%s: ", label)
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(errOut)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
			}
			return string(b), nil
		}

		if lines == nil {
			lines = bufio.NewReader(in)
		}
		line, err := lines.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
