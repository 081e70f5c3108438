package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"lootman.ai/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// queryCmd sends one request to /v1/query. Args are given as JSON, e.g.
// -args '{"owner":"14"}'.
func queryCmd(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "shared token (or set LOOTMAN_WS_TOKEN)")
	op := fs.String("op", "", "request op, e.g. FIND_NEARBY")
	rawArgs := fs.String("args", "{}", "request args as JSON")
	_ = fs.Parse(args)

	req, err := buildQuery(*op, *rawArgs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad request:", err)
		os.Exit(2)
	}
	body, _ := json.Marshal(req)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/query"
	hr, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	hr.Header.Set("Content-Type", "application/json")
	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("LOOTMAN_WS_TOKEN"))
	}
	if tok != "" {
		hr.Header.Set("x-lootman-token", tok)
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(hr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func buildQuery(op, rawArgs string) (protocol.ReqMsg, error) {
	op = strings.ToUpper(strings.TrimSpace(op))
	if op == "" {
		return protocol.ReqMsg{}, fmt.Errorf("missing -op")
	}
	req := protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("admin-%d", time.Now().UnixNano()),
		Op:              op,
	}
	dec := json.NewDecoder(strings.NewReader(rawArgs))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req.Args); err != nil {
		return protocol.ReqMsg{}, fmt.Errorf("args: %w", err)
	}
	return req, nil
}
