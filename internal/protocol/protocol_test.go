package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/novachat/internal/domain"
)

func TestBodyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"single line", "hello"},
		{"multi line", "line one\nline two\nline three"},
		{"empty", ""},
		{"leading dot", ".hidden\n..double\nplain"},
		{"lone dot line", "before\n.\nafter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteBody(&buf, tt.text))

			got, err := ReadBody(NewScanner(&buf))
			require.NoError(t, err)
			assert.Equal(t, tt.text, got)
		})
	}
}

func TestReadBodyMissingSentinel(t *testing.T) {
	_, err := ReadBody(NewScanner(strings.NewReader("no terminator\n")))
	assert.Error(t, err)
}

func TestWriteBodyStuffsDots(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBody(&buf, ".secret"))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "..secret", lines[0])
	assert.Equal(t, Sentinel, lines[1])
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{domain.ErrDuplicateUser, CodeDuplicateUser},
		{domain.ErrInvalidCredentials, CodeInvalidCredentials},
		{fmt.Errorf("append: %w", domain.ErrStorageUnavailable), CodeStorageUnavailable},
		{fmt.Errorf("dial: %w", domain.ErrBackendUnreachable), CodeBackendUnreachable},
		{domain.ErrBackendTimeout, CodeBackendTimeout},
		{&domain.BackendError{Status: 500, Message: "boom"}, CodeBackendError},
		{&domain.PartialTurnError{Err: domain.ErrStorageUnavailable}, CodePartialTurn},
		{errors.New("anything else"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code, detail := Describe(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, detail)
		})
	}
}

func TestDescribeBackendErrorKeepsMessage(t *testing.T) {
	_, detail := Describe(&domain.BackendError{Status: 503, Message: "overloaded"})
	assert.Equal(t, "overloaded", detail)
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteError(&buf, domain.ErrBackendUnreachable))
	assert.Equal(t, "ERROR backend-unreachable assistant is offline\n", buf.String())
}
