package protocol

import (
	"fmt"
	"strings"
)

// The legacy dialect mixes directives into the shell input stream:
//
//	"\x03"              interrupt
//	"START_VPN:<path>"  start the vpn aux process
//	"STOP_VPN"          stop the aux process
//	"START_HTTP:<dir>"  start the http aux process
//	"STOP_HTTP"         stop the aux process
//
// Everything else is literal input. A leading backslash marks the rest of
// the frame as literal, so "\STOP_VPN" reaches the shell as "STOP_VPN".
const (
	LegacyInterrupt = "\x03"
	LegacyEscape    = `\`

	legacyStartPrefix = "START_"
	legacyStopPrefix  = "STOP_"
)

// legacyAux maps the dialect's directive suffixes to aux catalog names.
var legacyAux = map[string]string{
	"VPN":  "vpn",
	"HTTP": "http",
}

// DecodeLegacy parses one legacy frame. It never fails: anything that is
// not a recognised directive is literal input.
func DecodeLegacy(frame string) ClientMessage {
	if strings.HasPrefix(frame, LegacyEscape) {
		return Literal(frame[len(LegacyEscape):])
	}
	if frame == LegacyInterrupt {
		return Interrupt()
	}
	if rest, ok := strings.CutPrefix(frame, legacyStartPrefix); ok {
		if suffix, arg, found := strings.Cut(rest, ":"); found {
			if name, known := legacyAux[suffix]; known {
				return StartAux(name, strings.TrimSpace(arg))
			}
		}
	}
	if rest, ok := strings.CutPrefix(frame, legacyStopPrefix); ok {
		if name, known := legacyAux[strings.TrimSpace(rest)]; known {
			return ClientMessage{Type: KindStopAux, Aux: name}
		}
	}
	return Literal(frame)
}

// EncodeLegacy renders a message in the legacy dialect, escaping literal
// input that would otherwise be read as a directive.
func EncodeLegacy(m ClientMessage) (string, error) {
	switch m.Type {
	case KindLiteral:
		if legacyCollides(m.Data) {
			return LegacyEscape + m.Data, nil
		}
		return m.Data, nil
	case KindInterrupt:
		return LegacyInterrupt, nil
	case KindStartAux:
		if err := m.Validate(); err != nil {
			return "", err
		}
		suffix, ok := legacySuffix(m.Aux)
		if !ok {
			return "", fmt.Errorf("legacy dialect has no directive for aux %q", m.Aux)
		}
		return legacyStartPrefix + suffix + ":" + m.Arg, nil
	case KindStopAux:
		suffix, ok := legacySuffix(m.Aux)
		if !ok {
			suffix = "VPN"
		}
		return legacyStopPrefix + suffix, nil
	default:
		return "", fmt.Errorf("%w: %q has no legacy form", ErrUnknownType, m.Type)
	}
}

func legacySuffix(aux string) (string, bool) {
	for suffix, name := range legacyAux {
		if name == aux {
			return suffix, true
		}
	}
	return "", false
}

// legacyCollides reports whether literal text would decode as something
// other than itself.
func legacyCollides(text string) bool {
	decoded := DecodeLegacy(text)
	return decoded.Type != KindLiteral || decoded.Data != text
}
