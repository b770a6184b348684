package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/scttfrdmn/catering-agent-go/adapter/codec"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/approval"
	"github.com/scttfrdmn/catering-agent-go/catalog"
	"github.com/scttfrdmn/catering-agent-go/catering"
	"github.com/scttfrdmn/catering-agent-go/export"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/reconcile"
	"github.com/scttfrdmn/catering-agent-go/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stationAgent answers with the station from the session state so tests
// can see that state reaches the agent tree.
type stationAgent struct{}

func (stationAgent) Name() string           { return "catering_agent_v2" }
func (stationAgent) Capabilities() []string { return nil }
func (a stationAgent) Introspect() *agenkit.IntrospectionResult {
	return agenkit.DefaultIntrospectionResult(a)
}

func (stationAgent) Process(ctx context.Context, msg *agenkit.Message) (*agenkit.Message, error) {
	if msg.Content == "fail" {
		return nil, errors.New("model unavailable")
	}
	state, _ := msg.Metadata[catering.MetadataSessionState].(map[string]interface{})
	stations, _ := state["user_accessibility"].(map[string]interface{})
	return agenkit.NewMessage(agenkit.RoleAssistant, "Stations: "+stations["station"].(string)).
		WithMetadata(patterns.MetadataAgentPath, []string{"catering_agent_v2", "main_multi_tool_agent"}).
		WithMetadata(patterns.MetadataRoutedAgent, "main_multi_tool_agent"), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	sink, err := export.NewLocalSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.NewService(catalog.NewMemoryStore(), nil)
	exp := export.New(sink)
	workflow, err := approval.New(approval.Config{Catalog: cat, Exporter: exp})
	if err != nil {
		t.Fatal(err)
	}
	toolkit, err := catering.NewToolkit(cat, exp, nil, time.Now)
	if err != nil {
		t.Fatal(err)
	}
	assistant := catering.NewAssistant(stationAgent{}, session.NewMemoryService(), nil)

	srv, err := NewServer(Options{
		Assistant: assistant,
		Approvals: workflow,
		Tools:     toolkit.Registry(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL)
}

func TestNewServer_RequiresAssistant(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Error("expected error without assistant")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, client := newTestServer(t)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["agent"] != "catering_agent_v2" {
		t.Errorf("unexpected health body %v", body)
	}

	m, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	m.Body.Close()
	if m.StatusCode != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", m.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts, client := newTestServer(t)
	ctx := context.Background()

	s, err := client.CreateSession(ctx, "EMP777", map[string]interface{}{
		"user_accessibility": map[string]interface{}{"station": "LHR"},
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.UserID != "EMP777" || s.ID == "" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.State[session.StateUserName] != "John Doe" {
		t.Errorf("default state not applied: %v", s.State)
	}

	reply, err := client.Send(ctx, s.ID, "What can I order?")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	want := &MessageResponse{
		SessionID:   s.ID,
		Content:     "Stations: LHR",
		AgentPath:   []string{"catering_agent_v2", "main_multi_tool_agent"},
		RoutedAgent: "main_multi_tool_agent",
	}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	req, _ := http.NewRequest(http.MethodPatch, ts.URL+"/v1/sessions/"+s.ID,
		strings.NewReader(`{"user_accessibility":{"station":"DXB"}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH returned %d", resp.StatusCode)
	}
	if reply, err := client.Send(ctx, s.ID, "again"); err != nil || reply.Content != "Stations: DXB" {
		t.Errorf("state update not visible: %+v %v", reply, err)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/"+s.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE returned %d", resp.StatusCode)
	}

	_, err = client.Send(ctx, s.ID, "hello?")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Code != codec.CodeSessionNotFound {
		t.Errorf("expected session not found, got %v", err)
	}
}

func TestMessageErrors(t *testing.T) {
	ts, client := newTestServer(t)
	ctx := context.Background()
	s, err := client.CreateSession(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.UserID != session.DefaultUserID {
		t.Errorf("expected default user, got %q", s.UserID)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty content", `{"content":"  "}`, http.StatusBadRequest},
		{"bad json", `{"content":`, http.StatusBadRequest},
		{"missing body", ``, http.StatusBadRequest},
		{"agent failure", `{"content":"fail"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/sessions/"+s.ID+"/messages", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			var body map[string]ErrorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"].Code == "" {
				t.Errorf("expected error body, got %v (%v)", body, err)
			}
		})
	}
}

func TestApprovalEndpoint(t *testing.T) {
	_, client := newTestServer(t)

	out, err := client.Approve(context.Background(), "TXN001")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if out.Result.Decision() != reconcile.Rejected {
		t.Errorf("expected rejection, got %+v", out.Result.Report)
	}
	if !strings.Contains(out.Summary, "Overall approval: REJECTED") {
		t.Errorf("unexpected summary:\n%s", out.Summary)
	}

	lower, err := client.Approve(context.Background(), "txn001")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if lower.Result.TransactionID != "TXN001" || lower.Result.Report == nil {
		t.Errorf("expected a lower-case ID to find TXN001, got %+v", lower.Result)
	}

	missing, err := client.Approve(context.Background(), "TXN999")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if missing.Result.Status != catalog.StatusError || missing.Result.Report != nil {
		t.Errorf("expected halted workflow, got %+v", missing.Result)
	}
}

func TestTools(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/tools")
	if err != nil {
		t.Fatal(err)
	}
	var list []toolInfo
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	names := map[string]bool{}
	for _, ti := range list {
		names[ti.Name] = true
	}
	if !names[catering.ToolFlightDetails] || names[catering.ToolKnowledgeContext] {
		t.Errorf("unexpected tool list %v", names)
	}

	resp, err = http.Post(ts.URL+"/v1/tools/"+catering.ToolSayHello, "application/json", strings.NewReader(`{"name":"Asha"}`))
	if err != nil {
		t.Fatal(err)
	}
	var result agenkit.ToolResult
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if !result.Success || result.Data != "Hello, Asha!" {
		t.Errorf("unexpected tool result %+v", result)
	}

	resp, err = http.Post(ts.URL+"/v1/tools/launch_rocket", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown tool, got %d", resp.StatusCode)
	}
}

func TestWebSocketChat(t *testing.T) {
	ts, client := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := client.CreateSession(ctx, "EMP123", nil)
	if err != nil {
		t.Fatal(err)
	}
	chat, err := client.DialChat(ctx)
	if err != nil {
		t.Fatalf("DialChat failed: %v", err)
	}
	defer chat.Close()

	reply, err := chat.Ask(ctx, s.ID, "Which stations?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Content != "Stations: DXB, MAA" || reply.MetadataString(agenkit.MetadataSessionID) != s.ID {
		t.Errorf("unexpected reply %+v", reply)
	}

	if _, err := chat.Ask(ctx, "no-such-session", "hi"); err == nil || !strings.Contains(err.Error(), codec.CodeSessionNotFound) {
		t.Errorf("expected session error, got %v", err)
	}

	// A malformed frame is answered with an error and keeps the socket open.
	raw, _, err := websocket.DefaultDialer.DialContext(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	if err := raw.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	_, data, err := raw.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	env, err := codec.DecodeBytes(data)
	if err != nil || env.Type != codec.TypeError || env.Payload["error_code"] != codec.CodeInvalidRequest {
		t.Errorf("expected invalid request frame, got %+v (%v)", env, err)
	}
	raw.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func TestServeListener_Shutdown(t *testing.T) {
	assistant := catering.NewAssistant(stationAgent{}, session.NewMemoryService(), nil)
	srv, err := NewServer(Options{Assistant: assistant})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln, 5*time.Second, 5*time.Second) }()

	client := NewClient("http://" + ln.Addr().String())
	var healthErr error
	for i := 0; i < 50; i++ {
		if healthErr = client.Health(context.Background()); healthErr == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if healthErr != nil {
		t.Fatalf("server never became healthy: %v", healthErr)
	}

	s, err := client.CreateSession(context.Background(), "EMP123", nil)
	if err != nil {
		t.Fatal(err)
	}
	chat, err := client.DialChat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := chat.Ask(context.Background(), s.ID, "ping"); err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	// The server closed the socket on shutdown.
	if _, err := chat.Ask(context.Background(), s.ID, "still there?"); err == nil {
		t.Error("expected closed connection after shutdown")
	}
	chat.Close()
	client.http.CloseIdleConnections()
}
