package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/scttfrdmn/catering-agent-go/adapter/http"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var approveCmd = &cobra.Command{
	Use:   "approve <transaction-id>",
	Short: "Run the stock count approval workflow for a transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Chunk a text document into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over HTTP and websocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the agent tree",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func sessionState() map[string]interface{} {
	if station == "" {
		return nil
	}
	return map[string]interface{}{
		"user_accessibility": map[string]interface{}{"station": station},
	}
}

// asker answers one message within a session, in process or remotely.
type asker interface {
	Ask(ctx context.Context, text string) (string, []string, error)
	Close() error
}

type localAsker struct {
	app       *app
	sessionID string
}

func (l *localAsker) Ask(ctx context.Context, text string) (string, []string, error) {
	reply, err := l.app.assistant.Ask(ctx, l.sessionID, text)
	if err != nil {
		return "", nil, err
	}
	return reply.Content, reply.AgentPath(), nil
}

func (l *localAsker) Close() error { return l.app.Close() }

type remoteAsker struct {
	client    *httpadapter.Client
	chat      *httpadapter.ChatConn
	sessionID string
}

func (r *remoteAsker) Ask(ctx context.Context, text string) (string, []string, error) {
	if r.chat != nil {
		reply, err := r.chat.Ask(ctx, r.sessionID, text)
		if err != nil {
			return "", nil, err
		}
		return reply.Content, reply.AgentPath(), nil
	}
	reply, err := r.client.Send(ctx, r.sessionID, text)
	if err != nil {
		return "", nil, err
	}
	return reply.Content, reply.AgentPath, nil
}

func (r *remoteAsker) Close() error {
	if r.chat != nil {
		return r.chat.Close()
	}
	return nil
}

// openAsker starts a session locally or on --server. Interactive chats use
// the websocket channel.
func openAsker(ctx context.Context, interactive bool) (asker, *session.Session, error) {
	if serverURL != "" {
		client := httpadapter.NewClient(serverURL)
		s, err := client.CreateSession(ctx, userID, sessionState())
		if err != nil {
			return nil, nil, err
		}
		r := &remoteAsker{client: client, sessionID: s.ID}
		if interactive {
			if r.chat, err = client.DialChat(ctx); err != nil {
				return nil, nil, err
			}
		}
		return r, s, nil
	}

	a, err := loadApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := a.assistant.StartSession(ctx, userID, sessionState())
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return &localAsker{app: a, sessionID: s.ID}, s, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, _, err := openAsker(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	content, _, err := a.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), content)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, s, err := openAsker(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	name, _ := s.Lookup(session.StateUserName)
	fmt.Fprintf(out, "Catering assistant (session %s, user %v). Type 'exit' to quit.\n", s.ID, name)
	return chatLoop(ctx, a, cmd.InOrStdin(), out)
}

func chatLoop(ctx context.Context, a asker, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		content, path, err := a.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, "Error:", err)
			continue
		}
		if len(path) > 0 {
			fmt.Fprintf(out, "[%s]\n", strings.Join(path, " > "))
		}
		fmt.Fprintln(out, content)
	}
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	txn := strings.ToUpper(args[0])

	if serverURL != "" {
		out, err := httpadapter.NewClient(serverURL).Approve(ctx, txn)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out.Summary)
		return nil
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.approvals.Run(ctx, txn)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), result.Summary())
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = filepath.Base(args[0])
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.knowledge == nil {
		return errors.New("knowledge base is disabled")
	}
	if a.cfg.Knowledge.StorePath == "" {
		a.logger.Warn("knowledge.store_path is empty; ingested chunks are discarded on exit")
	}

	result, err := a.knowledge.Ingest(ctx, source, string(data))
	if err != nil {
		return err
	}
	a.audit.LogIngest(ctx, "", source, result.Chunks)
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %s: %s\n", result.Chunks, source, strings.Join(result.IDs, ", "))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := httpadapter.Options{
		Assistant:   a.assistant,
		Approvals:   a.approvals,
		Tools:       a.toolkit.Registry(),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Logger:      a.logger,
	}
	if a.metrics != nil {
		opts.Metrics = a.metrics.Handler()
	}
	srv, err := httpadapter.NewServer(opts)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	return srv.Serve(ctx, addr, a.cfg.Server.ReadTimeout, a.cfg.Server.ShutdownTimeout)
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	tree := a.root.Introspect()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		b, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}
	tree.Walk(func(depth int, node *agenkit.IntrospectionResult) {
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth), node.AgentName)
	})
	return nil
}
