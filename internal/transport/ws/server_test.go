package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/model"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

func newService(t *testing.T) *lootman.Service {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	quiet := log.New(io.Discard, "", 0)
	w, err := world.Load("../../../configs/world.json", cats, quiet)
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	svc := lootman.New(w, lootman.Config{Tuning: tuning.Defaults(), Logger: quiet})
	t.Cleanup(svc.Close)
	return svc
}

func dial(t *testing.T, cfg Config, hello protocol.HelloMsg) (*websocket.Conn, *lootman.Service) {
	t.Helper()
	svc := newService(t)
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	srv := httptest.NewServer(NewServer(svc, cfg).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return conn, svc
}

func hello(token string) protocol.HelloMsg {
	h := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"}
	if token != "" {
		h.Auth = &protocol.Auth{Token: token}
	}
	return h
}

func roundTrip(t *testing.T, conn *websocket.Conn, req protocol.ReqMsg) protocol.RespMsg {
	t.Helper()
	req.Type = protocol.TypeReq
	req.ProtocolVersion = protocol.Version
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write req: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp protocol.RespMsg
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read resp: %v", err)
	}
	return resp
}

func TestServer_HandshakeAndQuery(t *testing.T) {
	conn, _ := dial(t, Config{}, hello(""))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if welcome.Params.LootingRange != 800 || welcome.Catalogs.FormsDigest == "" || welcome.Catalogs.TuningDigest == "" {
		t.Fatalf("welcome params: %+v", welcome)
	}

	resp := roundTrip(t, conn, protocol.ReqMsg{
		ReqID: "R1",
		Op:    protocol.OpFindNearby,
		Args:  protocol.ReqArgs{Anchor: 0x14, Filter: model.TypeMisc},
	})
	if !resp.OK || resp.ReqID != "R1" {
		t.Fatalf("resp: %+v", resp)
	}
	if len(resp.Refs) != 2 || resp.Refs[0].ID != 0x00100A03 || resp.Refs[1].ID != 0x00100A10 {
		t.Fatalf("refs: %+v", resp.Refs)
	}
	if resp.Refs[0].Distance < resp.Refs[1].Distance {
		t.Fatalf("expected farthest first: %+v", resp.Refs)
	}

	resp = roundTrip(t, conn, protocol.ReqMsg{ReqID: "R2", Op: "TELEPORT"})
	if resp.OK || resp.Code != protocol.ErrUnknownOp {
		t.Fatalf("unknown op resp: %+v", resp)
	}
}

func TestServer_RejectsNonRequest(t *testing.T) {
	conn, _ := dial(t, Config{}, hello(""))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp protocol.RespMsg
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%q", resp.Code)
	}

	b, _ := json.Marshal(protocol.ReqMsg{Type: protocol.TypeReq, ProtocolVersion: "0.1", ReqID: "R9", Op: protocol.OpCachedCells})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Code != protocol.ErrProtoVersion || resp.ReqID != "R9" {
		t.Fatalf("version resp: %+v", resp)
	}
}

func TestServer_TokenRequired(t *testing.T) {
	conn, _ := dial(t, Config{Token: "s3cret"}, hello("wrong"))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}

	conn, _ = dial(t, Config{Token: "s3cret"}, hello("s3cret"))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.SessionID == "" {
		t.Fatalf("welcome: %+v err=%v", welcome, err)
	}
}

func TestDispatch_Ops(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	do := func(op string, a protocol.ReqArgs) protocol.RespMsg {
		return Dispatch(ctx, svc, protocol.ReqMsg{ReqID: op, Op: op, Args: a})
	}

	zero := 0.0
	resp := do(protocol.OpFindNearby, protocol.ReqArgs{Anchor: 0x14, Radius: &zero, Filter: model.TypeMisc})
	if len(resp.Refs) != 3 {
		t.Fatalf("unbounded refs: %+v", resp.Refs)
	}
	if resp := do(protocol.OpFindNearby, protocol.ReqArgs{}); resp.Code != protocol.ErrBadRequest {
		t.Fatalf("missing anchor: %+v", resp)
	}

	resp = do(protocol.OpScrapMisc, protocol.ReqArgs{Form: 0x00059B02})
	if !resp.OK || len(resp.Components) != 3 || resp.Components[0].Form != 0x000731A4 || resp.Components[0].Count != 2 {
		t.Fatalf("scrap misc: %+v", resp)
	}

	resp = do(protocol.OpIsAffixed, protocol.ReqArgs{Ref: 0x00100A02})
	if resp.Flag == nil || !*resp.Flag {
		t.Fatalf("is affixed: %+v", resp)
	}

	resp = do(protocol.OpFormType, protocol.ReqArgs{Form: 0x0000463F})
	if resp.FormType != "WEAP" {
		t.Fatalf("form type: %+v", resp)
	}
	resp = do(protocol.OpFormType, protocol.ReqArgs{Form: 0xDEAD})
	if !resp.OK || resp.FormType != "NONE" {
		t.Fatalf("unknown form type: %+v", resp)
	}

	resp = do(protocol.OpConfigInt, protocol.ReqArgs{Key: "looting_range"})
	if resp.Value == nil || *resp.Value != 800 {
		t.Fatalf("config int: %+v", resp)
	}
	if resp := do(protocol.OpConfigInt, protocol.ReqArgs{Key: "nope"}); resp.Code != protocol.ErrNotFound {
		t.Fatalf("unknown key: %+v", resp)
	}

	resp = do(protocol.OpSetCellLoaded, protocol.ReqArgs{Cell: 0x0000E0A3, Loaded: true})
	if !resp.OK {
		t.Fatalf("set cell loaded: %+v", resp)
	}
	found := false
	for _, c := range resp.Cells {
		found = found || c == 0x0000E0A3
	}
	if !found {
		t.Fatalf("loaded cell not cached: %v", resp.Cells)
	}
	if resp := do(protocol.OpSetCellLoaded, protocol.ReqArgs{Cell: 0xDEAD, Loaded: true}); resp.Code != protocol.ErrNotFound {
		t.Fatalf("unknown cell: %+v", resp)
	}

	resp = do(protocol.OpInjectionList, protocol.ReqArgs{Name: "lootman_junk"})
	if len(resp.Forms) != 2 {
		t.Fatalf("injection list: %+v", resp.Forms)
	}

	resp = do(protocol.OpFilterForms, protocol.ReqArgs{Forms: []model.FormID{0x00059B02, 0x0000463F}, Include: []model.FormType{model.TypeWeapon}})
	if !resp.OK || len(resp.Forms) != 1 || resp.Forms[0].ID != 0x0000463F {
		t.Fatalf("filter forms: %+v", resp)
	}
	if resp := do(protocol.OpFilterForms, protocol.ReqArgs{}); resp.Code != protocol.ErrBadRequest {
		t.Fatalf("missing forms: %+v", resp)
	}
	resp = do(protocol.OpFilterRefs, protocol.ReqArgs{Refs: []model.FormID{0x00100A01, 0x00100A03}, Include: []model.FormType{model.TypeMisc}})
	if !resp.OK || len(resp.Refs) != 1 || resp.Refs[0].ID != 0x00100A03 || resp.Refs[0].Type != model.TypeMisc {
		t.Fatalf("filter refs: %+v", resp)
	}
	resp = do(protocol.OpListsContaining, protocol.ReqArgs{Form: 0x0000463F})
	if !resp.OK || len(resp.Forms) != 1 || resp.Forms[0].ID != 0x00100001 {
		t.Fatalf("lists containing: %+v", resp)
	}
}
