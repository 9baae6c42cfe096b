// Package client implements the interactive terminal shell. It speaks only
// the wire protocol: one line out, one framed response back, never more than
// one outstanding turn.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/novachat/novachat/internal/protocol"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type Shell struct {
	serverAddr string
	in         *bufio.Scanner
	out        io.Writer

	conn     net.Conn
	resp     *bufio.Scanner
	username string
}

func NewShell(serverAddr string, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		serverAddr: serverAddr,
		in:         bufio.NewScanner(in),
		out:        out,
	}
}

// Run connects, authenticates, then loops reading one line of input and
// rendering one response until exit or disconnect.
func (sh *Shell) Run() error {
	conn, err := net.DialTimeout("tcp", sh.serverAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", sh.serverAddr, err)
	}
	defer conn.Close()
	sh.conn = conn
	sh.resp = protocol.NewScanner(conn)

	fmt.Fprintln(sh.out, promptStyle.Render("Connected to chat server at "+sh.serverAddr))

	if err := sh.authenticate(); err != nil {
		return err
	}

	fmt.Fprintln(sh.out, infoStyle.Render("Commands: /history [n], /clear, help, exit"))
	fmt.Fprintln(sh.out)

	for {
		fmt.Fprint(sh.out, promptStyle.Render(sh.username+": "))
		if !sh.in.Scan() {
			return sh.in.Err()
		}
		line := strings.TrimSpace(sh.in.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit" || line == protocol.CmdQuit:
			sh.send(protocol.CmdQuit)
			fmt.Fprintln(sh.out, infoStyle.Render("Goodbye."))
			return nil
		case line == "help":
			sh.printHelp()
		case line == protocol.CmdClear:
			sh.doClear()
		case line == protocol.CmdHistory || strings.HasPrefix(line, protocol.CmdHistory+" "):
			if err := sh.doHistory(line); err != nil {
				return err
			}
		default:
			if err := sh.doTurn(line); err != nil {
				return err
			}
		}
	}
}

// authenticate mirrors the server preamble, reprompting until OK.
func (sh *Shell) authenticate() error {
	for {
		verb := protocol.VerbLogin
		fmt.Fprint(sh.out, "Are you a (N)ew user or (E)xisting user? [N/E]: ")
		choice, err := sh.readLine()
		if err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(choice), "N") {
			verb = protocol.VerbRegister
		}

		fmt.Fprint(sh.out, "Enter username: ")
		username, err := sh.readLine()
		if err != nil {
			return err
		}
		fmt.Fprint(sh.out, "Enter password: ")
		password, err := sh.readLine()
		if err != nil {
			return err
		}

		sh.send(verb + " " + strings.TrimSpace(username) + " " + strings.TrimSpace(password))
		status, rest, err := sh.readStatus()
		if err != nil {
			return err
		}
		if status == protocol.RespOK {
			sh.username = strings.TrimSpace(username)
			fmt.Fprintln(sh.out, promptStyle.Render("Welcome, "+sh.username+"!"))
			return nil
		}
		sh.renderError(rest)
	}
}

func (sh *Shell) doTurn(input string) error {
	sh.send(input)
	status, rest, err := sh.readStatus()
	if err != nil {
		return err
	}
	switch status {
	case protocol.RespReply:
		body, err := protocol.ReadBody(sh.resp)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, assistantStyle.Render("AI: "+body))
		fmt.Fprintln(sh.out)
	case protocol.RespPartial:
		body, err := protocol.ReadBody(sh.resp)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, assistantStyle.Render("AI: "+body))
		fmt.Fprintln(sh.out, warnStyle.Render("(warning: this reply could not be saved to your history)"))
		fmt.Fprintln(sh.out)
	case protocol.RespError:
		sh.renderError(rest)
	default:
		return fmt.Errorf("unexpected response %q", status)
	}
	return nil
}

func (sh *Shell) doHistory(line string) error {
	sh.send(line)
	status, rest, err := sh.readStatus()
	if err != nil {
		return err
	}
	if status == protocol.RespError {
		sh.renderError(rest)
		return nil
	}
	if status != protocol.RespHistory {
		return fmt.Errorf("unexpected response %q", status)
	}

	count, _ := strconv.Atoi(strings.TrimSpace(rest))
	fmt.Fprintln(sh.out, infoStyle.Render(fmt.Sprintf("--- last %d messages ---", count)))
	for sh.resp.Scan() {
		rec := sh.resp.Text()
		if rec == protocol.Sentinel {
			fmt.Fprintln(sh.out)
			return nil
		}
		fields := strings.SplitN(rec, " ", 4)
		if len(fields) != 4 || fields[0] != protocol.RespMsg {
			continue
		}
		content, err := strconv.Unquote(fields[3])
		if err != nil {
			content = fields[3]
		}
		label := sh.username
		style := promptStyle
		if fields[2] == "assistant" {
			label, style = "AI", assistantStyle
		}
		fmt.Fprintln(sh.out, style.Render(fmt.Sprintf("[%s] %s: %s", fields[1], label, content)))
	}
	if err := sh.resp.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (sh *Shell) doClear() {
	sh.send(protocol.CmdClear)
	status, rest, err := sh.readStatus()
	if err != nil {
		fmt.Fprintln(sh.out, errorStyle.Render("Connection lost."))
		return
	}
	if status == protocol.RespOK {
		fmt.Fprintln(sh.out, warnStyle.Render("Conversation cleared. Starting fresh."))
		return
	}
	sh.renderError(rest)
}

func (sh *Shell) printHelp() {
	fmt.Fprintln(sh.out, infoStyle.Render("exit/quit    - leave the chat"))
	fmt.Fprintln(sh.out, infoStyle.Render("/history [n] - show your recent messages"))
	fmt.Fprintln(sh.out, infoStyle.Render("/clear       - wipe the current conversation"))
	fmt.Fprintln(sh.out, infoStyle.Render("help         - show this message"))
}

func (sh *Shell) send(line string) {
	fmt.Fprintln(sh.conn, line)
}

func (sh *Shell) readLine() (string, error) {
	if !sh.in.Scan() {
		if err := sh.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sh.in.Text(), nil
}

// readStatus reads the first line of a response and splits off the verb.
func (sh *Shell) readStatus() (status, rest string, err error) {
	if !sh.resp.Scan() {
		if err := sh.resp.Err(); err != nil {
			return "", "", err
		}
		return "", "", io.ErrUnexpectedEOF
	}
	status, rest, _ = strings.Cut(sh.resp.Text(), " ")
	return status, rest, nil
}

// renderError turns "ERROR <code> <detail>" payloads into friendly messages.
func (sh *Shell) renderError(rest string) {
	code, detail, _ := strings.Cut(rest, " ")
	var msg string
	switch code {
	case protocol.CodeBackendUnreachable:
		msg = "Assistant is offline. Start your local model and try again; your message was saved."
	case protocol.CodeBackendTimeout:
		msg = "Assistant took too long to answer. Your message was saved, try again."
	case protocol.CodeBackendError:
		msg = "Assistant error: " + detail
	case protocol.CodeStorageUnavailable:
		msg = "Server storage is unavailable. " + detail
	case protocol.CodeDuplicateUser:
		msg = "That username is taken, pick another."
	case protocol.CodeInvalidCredentials:
		msg = "Invalid username or password."
	default:
		msg = detail
		if msg == "" {
			msg = code
		}
	}
	fmt.Fprintln(sh.out, errorStyle.Render(msg))
}
