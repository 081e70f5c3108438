package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/model"
)

// bot connects to a lootman server and periodically sweeps the area around a
// player: nearby lootables, their scrap yield and the player's junk.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		token    = flag.String("token", "", "HELLO auth token (or set LOOTMAN_WS_TOKEN)")
		player   = flag.String("player", "00000014", "player ref id (hex)")
		filter   = flag.String("filter", "ANY", "form type to look for")
		interval = flag.Duration("interval", 0, "repeat the sweep at this interval (0 = once)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	var anchor model.FormID
	if err := anchor.UnmarshalText([]byte(*player)); err != nil {
		logger.Fatalf("player: %v", err)
	}
	ft, err := model.ParseFormType(*filter)
	if err != nil {
		logger.Fatalf("filter: %v", err)
	}
	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("LOOTMAN_WS_TOKEN"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, w, err := dial(ctx, *url, *name, tok)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer c.Close()
	logger.Printf("WELCOME session=%s range=%v forms=%d recipes=%d",
		w.SessionID, w.Params.LootingRange, w.Catalogs.FormsCount, w.Catalogs.RecipesCount)

	for {
		if err := sweep(c, anchor, ft, os.Stdout); err != nil {
			logger.Fatalf("sweep: %v", err)
		}
		if *interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}

type client struct {
	conn *websocket.Conn
	seq  int
}

func dial(ctx context.Context, url, name, token string) (*client, protocol.WelcomeMsg, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, protocol.WelcomeMsg{}, err
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
	}
	if token != "" {
		hello.Auth = &protocol.Auth{Token: token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, protocol.WelcomeMsg{}, fmt.Errorf("send HELLO: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, protocol.WelcomeMsg{}, fmt.Errorf("read WELCOME: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeWelcome {
		conn.Close()
		return nil, protocol.WelcomeMsg{}, fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		conn.Close()
		return nil, protocol.WelcomeMsg{}, err
	}
	return &client{conn: conn}, w, nil
}

func (c *client) Close() error { return c.conn.Close() }

// do sends one REQ and waits for its RESP. Requests are not pipelined, so the
// next RESP on the wire is always ours.
func (c *client) do(op string, args protocol.ReqArgs) (protocol.RespMsg, error) {
	c.seq++
	req := protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("R%d", c.seq),
		Op:              op,
		Args:            args,
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return protocol.RespMsg{}, err
	}
	var resp protocol.RespMsg
	if err := c.conn.ReadJSON(&resp); err != nil {
		return protocol.RespMsg{}, err
	}
	if resp.ReqID != req.ReqID {
		return resp, fmt.Errorf("resp %s for req %s", resp.ReqID, req.ReqID)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s %s", op, resp.Code, resp.Message)
	}
	return resp, nil
}

func sweep(c *client, anchor model.FormID, filter model.FormType, out io.Writer) error {
	near, err := c.do(protocol.OpFindNearby, protocol.ReqArgs{Anchor: anchor, Filter: filter})
	if err != nil {
		return err
	}
	for _, r := range near.Refs {
		scrap, err := c.do(protocol.OpScrap, protocol.ReqArgs{Ref: r.ID})
		if err != nil {
			return err
		}
		linked, err := c.do(protocol.OpIsLinkedToWorkshop, protocol.ReqArgs{Ref: r.ID})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ref %s base=%s type=%s dist=%.1f workshop=%v scrap=%s\n",
			r.ID, r.Base, r.Type, r.Distance, linked.Flag != nil && *linked.Flag, formatComponents(scrap.Components))
	}

	junk, err := c.do(protocol.OpJunk, protocol.ReqArgs{Owner: anchor})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "nearby=%d junk=%d\n", len(near.Refs), len(junk.Forms))
	return nil
}

func formatComponents(cs []model.ComponentCount) string {
	if len(cs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("%sx%d", c.Form, c.Count))
	}
	return strings.Join(parts, ",")
}
