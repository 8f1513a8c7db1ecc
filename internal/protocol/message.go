// Package protocol defines what travels over a bridge socket.
//
// Client to bridge: JSON envelopes in WebSocket text frames, tagged by Type
// (input, interrupt, start_aux, stop_aux, ping). Tools that can only speak
// the older text dialect send binary frames, decoded by DecodeLegacy.
//
// Bridge to client: JSON envelopes carrying raw process output chunks,
// notices, the shell's exit code and keepalive replies. Output is
// unstructured; LineAssembler and Classify turn it into display lines.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrEmptyArgument = errors.New("directive argument is empty")
	ErrMalformed     = errors.New("malformed message")
)

// Kind tags a client to bridge message.
type Kind string

const (
	KindLiteral   Kind = "input"
	KindInterrupt Kind = "interrupt"
	KindStartAux  Kind = "start_aux"
	KindStopAux   Kind = "stop_aux"
	KindPing      Kind = "ping"
)

// ClientMessage is one client to bridge envelope.
type ClientMessage struct {
	Type Kind   `json:"type"`
	Data string `json:"data,omitempty"` // literal shell input, newline added by the bridge
	Aux  string `json:"aux,omitempty"`  // aux catalog entry for start_aux
	Arg  string `json:"arg,omitempty"`  // start_aux parameter, e.g. a VPN config path
}

func Literal(text string) ClientMessage { return ClientMessage{Type: KindLiteral, Data: text} }

func Interrupt() ClientMessage { return ClientMessage{Type: KindInterrupt} }

func StartAux(name, arg string) ClientMessage {
	return ClientMessage{Type: KindStartAux, Aux: name, Arg: arg}
}

func StopAux() ClientMessage { return ClientMessage{Type: KindStopAux} }

func Ping() ClientMessage { return ClientMessage{Type: KindPing} }

// Validate checks the envelope is well formed for its kind.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case KindLiteral, KindInterrupt, KindStopAux, KindPing:
		return nil
	case KindStartAux:
		if strings.TrimSpace(m.Aux) == "" {
			return fmt.Errorf("start_aux: aux name: %w", ErrEmptyArgument)
		}
		if strings.TrimSpace(m.Arg) == "" {
			return fmt.Errorf("start_aux %s: %w", m.Aux, ErrEmptyArgument)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// EncodeClient marshals a validated envelope.
func EncodeClient(m ClientMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeClient parses a JSON envelope from a text frame.
func DecodeClient(payload []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return ClientMessage{}, err
	}
	return m, nil
}

// ServerType tags a bridge to client message.
type ServerType string

const (
	TypeHello  ServerType = "hello"
	TypeOutput ServerType = "output"
	TypeNotice ServerType = "notice"
	TypeExit   ServerType = "exit"
	TypePong   ServerType = "pong"

	// TypeAuxExit reports that an aux process was reaped, after its last
	// output chunk, whether it ended on its own or by stop_aux.
	TypeAuxExit ServerType = "aux_exit"
)

// Stream names the process stream an output chunk came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	StreamAux    Stream = "aux"
)

// Level is the severity of a notice. It only picks the display prefix.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarn    Level = "warn"
)

// Prefix returns the transcript marker for the level.
func (l Level) Prefix() string {
	switch l {
	case LevelSuccess:
		return "[+]"
	case LevelError:
		return "[-]"
	case LevelWarn:
		return "[!]"
	default:
		return "[*]"
	}
}

// ServerMessage is one bridge to client envelope.
type ServerMessage struct {
	Type         ServerType `json:"type"`
	Stream       Stream     `json:"stream,omitempty"`
	Data         string     `json:"data,omitempty"`
	Level        Level      `json:"level,omitempty"`
	Message      string     `json:"message,omitempty"`
	Code         int        `json:"code,omitempty"`
	ConnectionID string     `json:"connection_id,omitempty"`
	ShellPID     int        `json:"shell_pid,omitempty"`
	Time         time.Time  `json:"time"`
}

func Output(stream Stream, data []byte) ServerMessage {
	return ServerMessage{Type: TypeOutput, Stream: stream, Data: string(data), Time: time.Now().UTC()}
}

func Notice(level Level, format string, args ...any) ServerMessage {
	return ServerMessage{
		Type:    TypeNotice,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now().UTC(),
	}
}

func Exit(code int) ServerMessage {
	return ServerMessage{Type: TypeExit, Code: code, Time: time.Now().UTC()}
}

func AuxExit(code int) ServerMessage {
	return ServerMessage{Type: TypeAuxExit, Code: code, Time: time.Now().UTC()}
}

func Pong() ServerMessage {
	return ServerMessage{Type: TypePong, Time: time.Now().UTC()}
}

func Hello(connectionID string, shellPID int) ServerMessage {
	return ServerMessage{Type: TypeHello, ConnectionID: connectionID, ShellPID: shellPID, Time: time.Now().UTC()}
}

// Render formats a notice as a single transcript line, e.g. "[+] vpn started".
func (m ServerMessage) Render() string {
	return m.Level.Prefix() + " " + m.Message
}

// DecodeServer parses a bridge envelope.
func DecodeServer(payload []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Type {
	case TypeHello, TypeOutput, TypeNotice, TypeExit, TypeAuxExit, TypePong:
		return m, nil
	default:
		return ServerMessage{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}
