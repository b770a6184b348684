package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scttfrdmn/catering-agent-go/catering"
	"github.com/scttfrdmn/catering-agent-go/config"
	"github.com/scttfrdmn/catering-agent-go/knowledge"
	"github.com/scttfrdmn/catering-agent-go/reconcile"
)

type echoAsker struct {
	asked []string
}

func (e *echoAsker) Ask(ctx context.Context, text string) (string, []string, error) {
	e.asked = append(e.asked, text)
	if text == "boom" {
		return "", nil, errors.New("model unavailable")
	}
	return "echo: " + text, []string{"catering_agent_v2", "greeting_agent"}, nil
}

func (e *echoAsker) Close() error { return nil }

func TestChatLoop(t *testing.T) {
	a := &echoAsker{}
	in := strings.NewReader("hello\n\nboom\nexit\nnever sent\n")
	var out bytes.Buffer

	if err := chatLoop(context.Background(), a, in, &out); err != nil {
		t.Fatalf("chatLoop failed: %v", err)
	}
	if len(a.asked) != 2 {
		t.Errorf("expected two questions before exit, got %v", a.asked)
	}
	got := out.String()
	for _, want := range []string{"[catering_agent_v2 > greeting_agent]", "echo: hello", "Error: model unavailable"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	cfg.Telemetry.Metrics = false
	cfg.Log.Level = "error"
	return cfg
}

func TestNewApp_Offline(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), io.Discard)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if a.root.Name() != catering.RootAgent {
		t.Errorf("unexpected root %q", a.root.Name())
	}
	if !a.toolkit.HasKnowledge() {
		t.Error("knowledge tools should be registered by default")
	}

	result, err := a.approvals.Run(ctx, "TXN001")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Decision() != reconcile.Rejected {
		t.Errorf("expected TXN001 to be rejected, got %s", result.Decision())
	}

	s, err := a.assistant.StartSession(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := a.assistant.Ask(ctx, s.ID, "hello")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Content == "" {
		t.Error("expected a reply from the offline model")
	}
}

func TestNewApp_AuditsExports(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logPath := filepath.Join(t.TempDir(), "audit.log")
	cfg.Export.AuditLogPath = logPath

	a, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	if _, err := a.approvals.Run(ctx, "TXN001"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(cfg.Export.Dir, "pre_approval_")
	if !strings.Contains(string(data), `"export_written"`) || !strings.Contains(string(data), want) {
		t.Errorf("audit log lacks the pre-approval export:\n%s", data)
	}
}

func TestNewApp_SQLiteBackends(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Storage.CatalogDSN = filepath.Join(dir, "catalog.db")
	cfg.Knowledge.StorePath = filepath.Join(dir, "knowledge.db")
	cfg.Export.AuditLogPath = filepath.Join(dir, "audit.log")

	a, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	res, err := a.knowledge.Ingest(ctx, "handbook.txt",
		"Halal meals are loaded at DXB. Vegetarian meals must be ordered 24 hours ahead. Allergen labels are printed on every tray.")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Chunks == 0 {
		t.Error("expected at least one chunk")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// The knowledge store survives a restart.
	b, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()
	topic := b.knowledge.SearchSpecificTopic(ctx, "vegetarian meals", 3)
	if topic.Status != knowledge.StatusSuccess {
		t.Errorf("expected stored chunks to be found, got %+v", topic)
	}
}
