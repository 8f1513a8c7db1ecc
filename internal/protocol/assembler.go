package protocol

import "strings"

// MaxPartialLine bounds how much unterminated output is held back. A
// longer run without a newline is emitted as a line of its own.
const MaxPartialLine = 64 * 1024

// LineAssembler rebuilds lines from output chunks that may split a line
// anywhere. Use one per stream so stdout and stderr partials never mix.
// Not safe for concurrent use.
type LineAssembler struct {
	partial strings.Builder
}

// Feed consumes a chunk and returns the lines it completed, oldest first.
// Carriage returns before a newline are dropped and blank lines are skipped.
func (a *LineAssembler) Feed(chunk string) []string {
	var lines []string
	for chunk != "" {
		idx := strings.IndexByte(chunk, '\n')
		if idx < 0 {
			a.partial.WriteString(chunk)
			if a.partial.Len() >= MaxPartialLine {
				if line, ok := a.Flush(); ok {
					lines = append(lines, line)
				}
			}
			break
		}
		a.partial.WriteString(chunk[:idx])
		chunk = chunk[idx+1:]
		if line, ok := a.Flush(); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Flush returns any held partial line and resets the assembler.
func (a *LineAssembler) Flush() (string, bool) {
	line := strings.TrimRight(a.partial.String(), "\r")
	a.partial.Reset()
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	return line, true
}

// Pending reports the unterminated text currently held.
func (a *LineAssembler) Pending() string {
	return a.partial.String()
}
