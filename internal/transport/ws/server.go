package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/runtime"
)

type Server struct {
	rt  *runtime.Runtime
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(rt *runtime.Runtime, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		rt:  rt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(r.Context(), conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. Everything sent to the client goes through out.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleMessage(ctx, out, msg)
		}

		s.detach(sessionID)
		s.log.Printf("session closed id=%s", sessionID)
	}
}

func (s *Server) handleMessage(ctx context.Context, out chan []byte, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		reply(ctx, out, protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json"))
		return
	}
	if base.Type != protocol.TypeCmd {
		reply(ctx, out, protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type))
		return
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		reply(ctx, out, protocol.NewError("", protocol.ErrProtoBadRequest, "malformed CMD"))
		return
	}
	if cmd.ProtocolVersion != protocol.Version {
		reply(ctx, out, protocol.NewError(cmd.ReqID, protocol.ErrBadProtocolVersion, "bad protocol_version"))
		return
	}
	c, err := runtime.CommandFromMsg(cmd)
	if err != nil {
		reply(ctx, out, protocol.NewError(cmd.ReqID, runtime.ErrorCode(err), err.Error()))
		return
	}

	resp := make(chan runtime.Result, 1)
	if !s.rt.Submit(runtime.Request{Cmd: c, Resp: resp}) {
		reply(ctx, out, protocol.NewError(cmd.ReqID, protocol.ErrBusy, "command inbox full"))
		return
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.rt.Done():
		case res := <-resp:
			if res.Err != nil {
				reply(ctx, out, protocol.NewError(cmd.ReqID, runtime.ErrorCode(res.Err), res.Err.Error()))
				return
			}
			reply(ctx, out, protocol.AckMsg{
				Type:            protocol.TypeAck,
				ProtocolVersion: protocol.Version,
				ReqID:           cmd.ReqID,
				Cmd:             cmd.Cmd,
				ServerTick:      res.Tick,
			})
		}
	}()
}

// reply queues a direct response. Unlike broadcasts it waits for room.
func reply(ctx context.Context, out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}

// detach gives up once the runtime loop has stopped.
func (s *Server) detach(sessionID string) {
	select {
	case s.rt.Detach() <- sessionID:
	case <-s.rt.Done():
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrBadProtocolVersion, "bad protocol_version"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan protocol.WelcomeMsg, 1)
	req := runtime.AttachRequest{
		ClientName:       hello.ClientName,
		StatusEveryTicks: hello.Capabilities.StatusEveryTicks,
		Out:              out,
		Resp:             respCh,
	}
	var welcome protocol.WelcomeMsg
	select {
	case s.rt.Attach() <- req:
	case <-s.rt.Done():
		s.closeUnavailable(conn)
		return "", nil
	case <-ctx.Done():
		return "", nil
	}
	select {
	case welcome = <-respCh:
	case <-s.rt.Done():
		s.closeUnavailable(conn)
		return "", nil
	case <-ctx.Done():
		return "", nil
	}

	if err := writeJSON(conn, welcome); err != nil {
		s.detach(welcome.SessionID)
		return "", nil
	}
	s.log.Printf("session open id=%s client=%s", welcome.SessionID, hello.ClientName)
	return welcome.SessionID, out
}

func (s *Server) closeUnavailable(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
