// Package main provides a CI-friendly smoke test for the auth service.
//
// It validates, against a running instance:
//   - cookie login + CSRF double-submit
//   - authenticated /me fetch
//   - WebSocket handshake with the access-token cookie + subprotocol selection
//   - hello/ack + ping/pong
//   - device revocation from a second session fans out session.revoked
//   - the revoked session's access token is dead
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol     = "beauty.realtime.v1"
	csrfHeader      = "X-CSRF-Token"
	deviceHeader    = "X-Device-ID"
	accessCookie    = "beauty_access_token"
	typeHello       = "hello"
	typeHelloAck    = "hello.ack"
	typePing        = "ping"
	typePong        = "pong"
	typeError       = "error"
	typeSessRevoked = "session.revoked"
	maxReadBytes    = 1 << 20
)

// envelope mirrors the server's realtime frame from the client side.
type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type helloAckPayload struct {
	ConnID   string `json:"connId"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId,omitempty"`
}

type sessionRevokedPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// restClient is one browser-like client: its own cookie jar, CSRF token,
// and device hint.
type restClient struct {
	name   string
	http   *http.Client
	base   *url.URL
	device string
	csrf   string
}

type loginResult struct {
	Success bool `json:"success"`
	Session struct {
		SessionID string `json:"sessionId"`
		DeviceID  string `json:"deviceId"`
		CSRFToken string `json:"csrfToken"`
	} `json:"session"`
}

func main() {
	var (
		base     = flag.String("base", "http://127.0.0.1:8080", "Service base URL")
		email    = flag.String("email", "", "Account email (required)")
		password = flag.String("password", "", "Account password (required)")
		origin   = flag.String("origin", "http://localhost", "Origin header for the WS handshake")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if strings.TrimSpace(*email) == "" || strings.TrimSpace(*password) == "" {
		fatalf("-email and -password are required")
	}
	baseURL, err := url.Parse(*base)
	if err != nil || baseURL.Host == "" {
		fatalf("invalid -base: %v", err)
	}

	root := context.Background()

	a := newRESTClient("A", baseURL, "smoke-device-a")
	b := newRESTClient("B", baseURL, "smoke-device-b")

	aLogin := a.mustLogin(root, *email, *password, *timeout)
	if *verbose {
		fmt.Printf("A logged in: session=%s device=%s\n", aLogin.Session.SessionID, aLogin.Session.DeviceID)
	}

	a.mustMe(root, *timeout, http.StatusOK)

	conn := a.mustDialWS(root, *origin, *timeout)
	defer closeWS(conn)

	inbox, errCh := startReadLoop(conn)

	sendEnvelope(root, conn, envelope{V: 1, Type: typeHello, ID: "smoke-hello", TS: time.Now().UTC()}, *timeout)
	ack := mustReadType(root, "A", inbox, errCh, typeHelloAck, *timeout)

	var ackPayload helloAckPayload
	if err := json.Unmarshal(ack.Payload, &ackPayload); err != nil {
		fatalf("unmarshal hello.ack: %v", err)
	}
	if ackPayload.ConnID == "" || ackPayload.UserID == "" {
		fatalf("hello.ack missing identity: %+v", ackPayload)
	}
	if *verbose {
		fmt.Printf("A ws connected: conn=%s user=%s\n", ackPayload.ConnID, ackPayload.UserID)
	}

	sendEnvelope(root, conn, envelope{V: 1, Type: typePing, ID: "smoke-ping", TS: time.Now().UTC()}, *timeout)
	mustReadType(root, "A", inbox, errCh, typePong, *timeout)

	bLogin := b.mustLogin(root, *email, *password, *timeout)
	if bLogin.Session.DeviceID == aLogin.Session.DeviceID {
		fatalf("expected distinct devices, both got %s", aLogin.Session.DeviceID)
	}

	b.mustRevokeDevice(root, aLogin.Session.DeviceID, *timeout)

	revoked := mustReadType(root, "A", inbox, errCh, typeSessRevoked, *timeout)
	var rp sessionRevokedPayload
	if err := json.Unmarshal(revoked.Payload, &rp); err != nil {
		fatalf("unmarshal session.revoked: %v", err)
	}
	if rp.DeviceID != aLogin.Session.DeviceID {
		fatalf("session.revoked device mismatch: got=%q want=%q", rp.DeviceID, aLogin.Session.DeviceID)
	}

	a.mustMe(root, *timeout, http.StatusUnauthorized)

	b.mustLogout(root, *timeout)

	fmt.Printf("OK: user=%s deviceA=%s deviceB=%s\n", ackPayload.UserID, aLogin.Session.DeviceID, bLogin.Session.DeviceID)
}

func newRESTClient(name string, base *url.URL, device string) *restClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookiejar: %v", err)
	}
	return &restClient{
		name:   name,
		http:   &http.Client{Jar: jar},
		base:   base,
		device: device,
	}
}

func (c *restClient) do(parent context.Context, method, path string, body any, stepTimeout time.Duration) (*http.Response, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal request (%s): %v", c.name, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rd)
	if err != nil {
		fatalf("build request (%s): %v", c.name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(deviceHeader, c.device)
	if c.csrf != "" {
		req.Header.Set(csrfHeader, c.csrf)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s (%s): %v", method, path, c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read body (%s): %v", c.name, err)
	}
	return resp, raw
}

func (c *restClient) mustLogin(parent context.Context, email, password string, stepTimeout time.Duration) loginResult {
	resp, raw := c.do(parent, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": email,
		"password":   password,
	}, stepTimeout)
	if resp.StatusCode != http.StatusOK {
		fatalf("login (%s): status=%d body=%s", c.name, resp.StatusCode, raw)
	}

	var out loginResult
	if err := json.Unmarshal(raw, &out); err != nil {
		fatalf("login decode (%s): %v", c.name, err)
	}
	if !out.Success || out.Session.CSRFToken == "" {
		fatalf("login (%s): unexpected body %s", c.name, raw)
	}
	c.csrf = out.Session.CSRFToken
	return out
}

func (c *restClient) mustMe(parent context.Context, stepTimeout time.Duration, wantStatus int) {
	resp, raw := c.do(parent, http.MethodGet, "/api/auth/me", nil, stepTimeout)
	if resp.StatusCode != wantStatus {
		fatalf("me (%s): status=%d want=%d body=%s", c.name, resp.StatusCode, wantStatus, raw)
	}
}

func (c *restClient) mustRevokeDevice(parent context.Context, deviceID string, stepTimeout time.Duration) {
	resp, raw := c.do(parent, http.MethodDelete, "/api/auth/devices/"+deviceID, nil, stepTimeout)
	if resp.StatusCode != http.StatusOK {
		fatalf("revoke device (%s): status=%d body=%s", c.name, resp.StatusCode, raw)
	}
}

func (c *restClient) mustLogout(parent context.Context, stepTimeout time.Duration) {
	resp, raw := c.do(parent, http.MethodPost, "/api/auth/logout", nil, stepTimeout)
	if resp.StatusCode != http.StatusOK {
		fatalf("logout (%s): status=%d body=%s", c.name, resp.StatusCode, raw)
	}
}

// mustDialWS opens the realtime channel the way a browser would: the access
// token travels in the cookie header, not the URL.
func (c *restClient) mustDialWS(parent context.Context, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := *c.base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"

	var cookieParts []string
	for _, ck := range c.http.Jar.Cookies(c.base) {
		cookieParts = append(cookieParts, ck.Name+"="+ck.Value)
	}
	if !strings.Contains(strings.Join(cookieParts, "; "), accessCookie+"=") {
		fatalf("no %s cookie in jar (%s)", accessCookie, c.name)
	}

	h := http.Header{}
	h.Set("Cookie", strings.Join(cookieParts, "; "))
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("ws dial (%s): %v", c.name, err)
	}
	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != "" && got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func startReadLoop(conn *websocket.Conn) (<-chan envelope, <-chan error) {
	inbox := make(chan envelope, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(inbox)
		for {
			mt, data, err := conn.Read(context.Background())
			if err != nil {
				errCh <- err
				return
			}
			if mt != websocket.MessageText {
				errCh <- fmt.Errorf("unexpected message type: %v", mt)
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				errCh <- fmt.Errorf("bad frame: %w", err)
				return
			}
			select {
			case inbox <- env:
			default:
				errCh <- errors.New("inbox overflow: consumer too slow")
				return
			}
		}
	}()
	return inbox, errCh
}

func mustReadType(parent context.Context, name string, inbox <-chan envelope, errCh <-chan error, wantType string, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s)", wantType, name)
		case err := <-errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, name, err)
		case env, ok := <-inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == typeError {
				var ep errorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", name, ep.Code, ep.Message)
			}
			// Other pushes (pings from earlier steps, notifications) are
			// skipped; only an explicit error frame is fatal.
		}
	}
}

func sendEnvelope(parent context.Context, conn *websocket.Conn, env envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	raw, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		fatalf("ws write: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
