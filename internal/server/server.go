// Package server implements the TCP line-protocol front of the chat service:
// one goroutine per connection, turns strictly sequential within a session,
// sessions independent of each other.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/novachat/novachat/internal/config"
	"github.com/novachat/novachat/internal/domain"
	"github.com/novachat/novachat/internal/protocol"
)

// Authenticator is the credential surface the server needs.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Authenticate(ctx context.Context, username, password string) (int64, error)
}

// TurnRunner executes one conversational turn.
type TurnRunner interface {
	Turn(ctx context.Context, userID int64, username, input string) (domain.Message, error)
}

// HistoryStore serves the /history and /clear commands.
type HistoryStore interface {
	History(ctx context.Context, userID int64, limit int) ([]domain.Message, error)
	Clear(ctx context.Context, userID int64) error
}

type Server struct {
	addr          string
	auth          Authenticator
	broker        TurnRunner
	conversations HistoryStore
	sessions      *Sessions

	ln     net.Listener
	wg     sync.WaitGroup
	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

func New(addr string, auth Authenticator, broker TurnRunner, conversations HistoryStore) *Server {
	return &Server{
		addr:          addr,
		auth:          auth,
		broker:        broker,
		conversations: conversations,
		sessions:      NewSessions(),
		conns:         make(map[net.Conn]struct{}),
	}
}

// Listen binds the TCP port. A failure here is fatal to startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr reports the bound address; valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is canceled, then closes the listener
// and all live connections and waits for handlers to drain.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("server listening", "addr", s.ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.ln.Close()
		s.connMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connMu.Unlock()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		s.trackConn(conn, true)
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}

	s.wg.Wait()
	slog.Info("server stopped")
	return nil
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.trackConn(conn, false)

	sess := s.sessions.Add()
	defer s.sessions.Remove(sess.ID)

	scan := protocol.NewScanner(conn)
	w := bufio.NewWriter(conn)

	slog.Debug("client connected", "session", sess.ID, "remote", conn.RemoteAddr().String())

	if !s.authenticate(ctx, sess, scan, w) {
		return
	}

	userID, username, err := sess.User()
	if err != nil {
		return
	}
	slog.Info("session authenticated", "session", sess.ID, "user", username)

	s.chatLoop(ctx, sess, userID, username, scan, w)
	slog.Debug("client disconnected", "session", sess.ID, "user", username)
}

// authenticate runs the connection preamble: LOGIN/REGISTER attempts until one
// succeeds or the client goes away. Returns false when the connection is done.
func (s *Server) authenticate(ctx context.Context, sess *Session, scan *bufio.Scanner, w *bufio.Writer) bool {
	for scan.Scan() {
		line := strings.TrimSuffix(scan.Text(), "\r")
		if line == "" {
			continue
		}
		verb, args, _ := strings.Cut(line, " ")
		username, password, ok := strings.Cut(args, " ")

		var userID int64
		var err error
		switch verb {
		case protocol.VerbRegister:
			if !ok {
				err = errBadRequest("usage: REGISTER <username> <password>")
			} else {
				userID, err = s.auth.Register(ctx, username, password)
			}
		case protocol.VerbLogin:
			if !ok {
				err = errBadRequest("usage: LOGIN <username> <password>")
			} else {
				userID, err = s.auth.Authenticate(ctx, username, password)
			}
		default:
			err = errBadRequest("log in first with LOGIN or REGISTER")
		}

		if err != nil {
			// Anything outside the error taxonomy here is a validation
			// complaint worth echoing back verbatim.
			if code, _ := protocol.Describe(err); code == protocol.CodeInternal {
				var bad *badRequestError
				if !errors.As(err, &bad) {
					err = errBadRequest(err.Error())
				}
			}
			if !s.respondErr(w, err) {
				return false
			}
			continue
		}
		if err := sess.Bind(userID, username); err != nil {
			return false
		}
		return s.respond(w, protocol.WriteLine(w, protocol.RespOK, strconv.FormatInt(userID, 10)))
	}
	return false
}

func (s *Server) chatLoop(ctx context.Context, sess *Session, userID int64, username string, scan *bufio.Scanner, w *bufio.Writer) {
	for scan.Scan() {
		line := strings.TrimSuffix(scan.Text(), "\r")
		if line == "" {
			continue
		}
		if !sess.Authenticated() {
			return
		}

		switch {
		case line == protocol.CmdQuit:
			sess.Close()
			s.respond(w, protocol.WriteLine(w, protocol.RespBye))
			return

		case line == protocol.CmdClear:
			if err := s.conversations.Clear(ctx, userID); err != nil {
				if !s.respondErr(w, err) {
					return
				}
				continue
			}
			if !s.respond(w, protocol.WriteLine(w, protocol.RespOK, "cleared")) {
				return
			}

		case line == protocol.CmdHistory || strings.HasPrefix(line, protocol.CmdHistory+" "):
			if !s.handleHistory(ctx, userID, line, w) {
				return
			}

		case strings.HasPrefix(line, "/"):
			if !s.respondErr(w, errBadRequest("unknown command: "+line)) {
				return
			}

		default:
			if !s.handleTurn(ctx, userID, username, line, w) {
				return
			}
		}
	}
}

func (s *Server) handleTurn(ctx context.Context, userID int64, username, input string, w *bufio.Writer) bool {
	start := time.Now()
	reply, err := s.broker.Turn(ctx, userID, username, input)
	slog.Debug("turn processed",
		"user", username,
		"duration", time.Since(start),
		"ok", err == nil,
	)

	if err != nil {
		var partial *domain.PartialTurnError
		if errors.As(err, &partial) {
			// The reply exists but was not persisted; deliver it with the
			// distinct partial-turn condition.
			_, detail := protocol.Describe(err)
			if werr := protocol.WriteLine(w, protocol.RespPartial, protocol.CodePartialTurn, detail); werr != nil {
				return false
			}
			return s.respond(w, protocol.WriteBody(w, partial.Reply.Content))
		}
		slog.Warn("turn failed", "user", username, "error", err)
		return s.respondErr(w, err)
	}

	if werr := protocol.WriteLine(w, protocol.RespReply, strconv.FormatInt(reply.Seq, 10)); werr != nil {
		return false
	}
	return s.respond(w, protocol.WriteBody(w, reply.Content))
}

func (s *Server) handleHistory(ctx context.Context, userID int64, line string, w *bufio.Writer) bool {
	limit := config.DefaultHistoryShown
	if _, arg, ok := strings.Cut(line, " "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return s.respondErr(w, errBadRequest("usage: /history [n]"))
		}
		limit = n
	}

	msgs, err := s.conversations.History(ctx, userID, limit)
	if err != nil {
		return s.respondErr(w, err)
	}

	if werr := protocol.WriteLine(w, protocol.RespHistory, strconv.Itoa(len(msgs))); werr != nil {
		return false
	}
	for _, m := range msgs {
		if werr := protocol.WriteLine(w, protocol.RespMsg,
			strconv.FormatInt(m.Seq, 10), m.Role, strconv.Quote(m.Content)); werr != nil {
			return false
		}
	}
	return s.respond(w, protocol.WriteLine(w, protocol.Sentinel))
}

// respond flushes the buffered response; false means the connection is dead.
func (s *Server) respond(w *bufio.Writer, err error) bool {
	if err != nil {
		return false
	}
	return w.Flush() == nil
}

func (s *Server) respondErr(w *bufio.Writer, err error) bool {
	var bad *badRequestError
	if errors.As(err, &bad) {
		if werr := protocol.WriteLine(w, protocol.RespError, protocol.CodeBadRequest, bad.msg); werr != nil {
			return false
		}
		return w.Flush() == nil
	}
	if werr := protocol.WriteError(w, err); werr != nil {
		return false
	}
	return w.Flush() == nil
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error { return &badRequestError{msg: msg} }
