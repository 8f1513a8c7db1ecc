package protocol

import (
	"regexp"
	"strings"
)

// Tone is a display hint for an output line. It is derived heuristically
// and must never influence protocol handling.
type Tone int

const (
	TonePlain Tone = iota
	ToneRequest
	ToneFailure
	ToneNotice
)

func (t Tone) String() string {
	switch t {
	case ToneRequest:
		return "request"
	case ToneFailure:
		return "failure"
	case ToneNotice:
		return "notice"
	default:
		return "plain"
	}
}

var (
	// Access log lines from directory servers: "GET /loot.txt HTTP/1.1" 200
	requestPattern = regexp.MustCompile(`"(GET|POST|PUT|DELETE|HEAD|OPTIONS|PATCH) \S+ HTTP/[0-9.]+" \d{3}`)
	failurePattern = regexp.MustCompile(`(?i)\b(error|failed|failure|denied|refused|fatal|unable|cannot)\b|command not found|no such file`)
)

var noticePrefixes = []string{"[*] ", "[+] ", "[-] ", "[!] "}

// Classify picks a display tone for one output line.
func Classify(line string) Tone {
	for _, p := range noticePrefixes {
		if strings.HasPrefix(line, p) {
			return ToneNotice
		}
	}
	if requestPattern.MatchString(line) {
		return ToneRequest
	}
	if failurePattern.MatchString(line) {
		return ToneFailure
	}
	return TonePlain
}
