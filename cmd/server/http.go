package main

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/observe"
	"lootman.ai/internal/persistence/indexdb"
	"lootman.ai/internal/persistence/objstore"
	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/model"
	"lootman.ai/internal/transport/ws"
)

type serverDeps struct {
	svc       *lootman.Service
	provider  *observe.Provider
	metrics   *observe.Metrics
	idx       runtimeIndex
	archive   *objstore.Archiver
	sessionID string
	wsToken   string
	admin     bool
	logger    *log.Logger
}

func newMux(d serverDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if d.provider != nil {
		mux.Handle("/metrics", d.provider.Handler())
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(d.svc, ws.Config{
		Logger:  d.logger,
		Metrics: d.metrics,
		Token:   d.wsToken,
	}).Handler())
	mux.HandleFunc("/v1/query", queryHandler(d))

	if d.admin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(stateOf(d))
		})
	} else if d.logger != nil {
		d.logger.Printf("admin endpoints disabled (LOOTMAN_ENABLE_ADMIN_HTTP=false)")
	}
	return mux
}

// queryHandler answers a single REQ over plain HTTP for clients that do not
// keep a websocket open.
func queryHandler(d serverDeps) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if d.wsToken != "" && strings.TrimSpace(r.Header.Get("x-lootman-token")) != d.wsToken {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(rw, "read body", http.StatusBadRequest)
			return
		}
		var req protocol.ReqMsg
		status := http.StatusOK
		var resp protocol.RespMsg
		switch err := json.Unmarshal(body, &req); {
		case err != nil:
			status = http.StatusBadRequest
			resp = protocol.RespMsg{Type: protocol.TypeResp, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoBadRequest, Message: "invalid json"}
		case req.ProtocolVersion != "" && req.ProtocolVersion != protocol.Version:
			status = http.StatusBadRequest
			resp = protocol.RespMsg{Type: protocol.TypeResp, ProtocolVersion: protocol.Version, ReqID: req.ReqID, Code: protocol.ErrProtoVersion, Message: "bad protocol_version"}
		default:
			resp = ws.Dispatch(r.Context(), d.svc, req)
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

type adminState struct {
	SessionID   string              `json:"session_id"`
	Welcome     protocol.WelcomeMsg `json:"welcome"`
	Cells       []cellState         `json:"cells"`
	CachedCells []model.FormID      `json:"cached_cells"`
	Index       *indexdb.Stats      `json:"index,omitempty"`
	Archive     *objstore.Stats     `json:"archive,omitempty"`
}

type cellState struct {
	ID     model.FormID `json:"id"`
	Loaded bool         `json:"loaded"`
	Refs   int          `json:"refs"`
}

func stateOf(d serverDeps) adminState {
	w := d.svc.World()
	st := adminState{
		SessionID:   d.sessionID,
		Welcome:     ws.Welcome(d.svc, d.sessionID),
		CachedCells: d.svc.CachedCells(),
	}
	for _, id := range w.CellIDs() {
		c, ok := w.LookupCell(id)
		if !ok {
			continue
		}
		st.Cells = append(st.Cells, cellState{ID: id, Loaded: c.Loaded3D(), Refs: len(c.Refs)})
	}
	if d.idx != nil {
		s := d.idx.Stats()
		st.Index = &s
	}
	if d.archive != nil {
		s := d.archive.Stats()
		st.Archive = &s
	}
	return st
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
