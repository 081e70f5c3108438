package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/observe"
	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/model"
)

type Config struct {
	Logger  *log.Logger
	Metrics *observe.Metrics
	// Token, when set, must match HELLO auth.token.
	Token    string
	MaxQueue int
}

type Server struct {
	svc     *lootman.Service
	log     *log.Logger
	metrics *observe.Metrics
	token   string
	maxQ    int

	upgrader websocket.Upgrader
}

func NewServer(svc *lootman.Service, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	maxQ := cfg.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	return &Server{
		svc:     svc,
		log:     logger,
		metrics: cfg.Metrics,
		token:   strings.TrimSpace(cfg.Token),
		maxQ:    maxQ,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
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

		sessionID := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		s.metrics.AddWSSessions(ctx, 1)
		defer s.metrics.AddWSSessions(context.Background(), -1)

		out := make(chan []byte, s.maxQ)
		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
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
				break
			}
			resp := s.handle(ctx, msg)
			b, err := json.Marshal(resp)
			if err != nil {
				s.log.Printf("session %s: marshal resp: %v", sessionID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-done
	}
}

func (s *Server) handle(ctx context.Context, msg []byte) protocol.RespMsg {
	bad := func(reqID, code, message string) protocol.RespMsg {
		return protocol.RespMsg{
			Type:            protocol.TypeResp,
			ProtocolVersion: protocol.Version,
			ReqID:           reqID,
			Code:            code,
			Message:         message,
		}
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return bad("", protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.Type != protocol.TypeReq {
		return bad("", protocol.ErrProtoBadRequest, "expected REQ")
	}
	var req protocol.ReqMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return bad("", protocol.ErrProtoBadRequest, err.Error())
	}
	if req.ProtocolVersion != protocol.Version {
		return bad(req.ReqID, protocol.ErrProtoVersion, "bad protocol_version")
	}
	return Dispatch(ctx, s.svc, req)
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if !supportsVersion(hello) {
		closeWith(conn, "bad protocol_version")
		return ""
	}
	if s.token != "" {
		got := ""
		if hello.Auth != nil {
			got = strings.TrimSpace(hello.Auth.Token)
		}
		if got != s.token {
			closeWith(conn, "bad token")
			return ""
		}
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	sessionID = uuid.NewString()
	if err := writeJSON(conn, Welcome(s.svc, sessionID)); err != nil {
		return ""
	}
	s.log.Printf("session %s: %s connected", sessionID, hello.ClientName)
	return sessionID
}

func supportsVersion(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
	}
	return false
}

// Welcome describes the session parameters and the catalogs behind svc.
func Welcome(svc *lootman.Service, sessionID string) protocol.WelcomeMsg {
	t := svc.Tuning()
	cats := svc.World().Catalogs()
	tuningDigest, _ := t.Digest()

	lootable := make([]string, 0, len(t.LootableTypes))
	for _, ft := range t.LootableTypes {
		lootable = append(lootable, ft.String())
	}
	if len(lootable) == 0 {
		for _, ft := range model.DefaultLootableTypes() {
			lootable = append(lootable, ft.String())
		}
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Params: protocol.SessionParams{
			LootingRange:   t.LootingRange,
			AffixFlagValue: t.AffixFlagValue,
			LootableTypes:  lootable,
			CellScan:       t.CellScan,
			CellRetention:  t.CellRetention,
		},
		Catalogs: protocol.CatalogDigests{
			FormsDigest:     cats.Forms.Digest,
			FormsCount:      len(cats.Forms.ByID),
			RecipesDigest:   cats.Crafting.Digest,
			RecipesCount:    len(cats.Crafting.List),
			InjectionDigest: cats.Injection.Digest,
			TuningDigest:    tuningDigest,
		},
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
