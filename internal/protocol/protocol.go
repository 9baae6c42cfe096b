// Package protocol defines the line-oriented wire exchange between the chat
// client and server. The preamble authenticates, after which every non-command
// line is one conversational turn. Multi-line payloads are framed SMTP-style:
// body lines with leading dots doubled, terminated by a lone "." sentinel.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/novachat/novachat/internal/config"
	"github.com/novachat/novachat/internal/domain"
)

const (
	Sentinel = "."

	// Client verbs
	VerbRegister = "REGISTER"
	VerbLogin    = "LOGIN"
	CmdHistory   = "/history"
	CmdClear     = "/clear"
	CmdQuit      = "/quit"

	// Server responses
	RespOK      = "OK"
	RespError   = "ERROR"
	RespReply   = "REPLY"
	RespPartial = "PARTIAL"
	RespHistory = "HISTORY"
	RespMsg     = "MSG"
	RespBye     = "BYE"
)

// Stable reason codes carried on ERROR and PARTIAL lines.
const (
	CodeDuplicateUser      = "duplicate-user"
	CodeInvalidCredentials = "invalid-credentials"
	CodeStorageUnavailable = "storage-unavailable"
	CodeBackendUnreachable = "backend-unreachable"
	CodeBackendTimeout     = "backend-timeout"
	CodeBackendError       = "backend-error"
	CodePartialTurn        = "partial-turn"
	CodeBadRequest         = "bad-request"
	CodeInternal           = "internal"
)

// Describe maps an error to its wire reason code and a human-readable detail.
func Describe(err error) (code, detail string) {
	var backendErr *domain.BackendError
	var partialErr *domain.PartialTurnError
	switch {
	// Partial turns wrap a storage error, so they must be recognized first.
	case errors.As(err, &partialErr):
		return CodePartialTurn, "your message was saved but the reply could not be"
	case errors.Is(err, domain.ErrDuplicateUser):
		return CodeDuplicateUser, "username already exists"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return CodeInvalidCredentials, "invalid username or password"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return CodeStorageUnavailable, "could not persist your message, please retry"
	case errors.Is(err, domain.ErrBackendUnreachable):
		return CodeBackendUnreachable, "assistant is offline"
	case errors.Is(err, domain.ErrBackendTimeout):
		return CodeBackendTimeout, "assistant did not respond in time, try again"
	case errors.As(err, &backendErr):
		return CodeBackendError, backendErr.Message
	default:
		return CodeInternal, "internal server error"
	}
}

// NewScanner wraps a connection with a scanner sized for long chat lines.
func NewScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), config.MaxLineLen)
	return s
}

func WriteLine(w io.Writer, parts ...string) error {
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

func WriteError(w io.Writer, err error) error {
	code, detail := Describe(err)
	return WriteLine(w, RespError, code, detail)
}

// WriteBody frames text as a dot-stuffed body followed by the sentinel.
func WriteBody(w io.Writer, text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, Sentinel) {
			line = Sentinel + line
		}
		if err := WriteLine(w, line); err != nil {
			return err
		}
	}
	return WriteLine(w, Sentinel)
}

// ReadBody consumes a dot-stuffed body up to and including the sentinel.
func ReadBody(s *bufio.Scanner) (string, error) {
	var b strings.Builder
	first := true
	for s.Scan() {
		line := s.Text()
		if line == Sentinel {
			return b.String(), nil
		}
		if strings.HasPrefix(line, Sentinel) {
			line = line[1:]
		}
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		first = false
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}
