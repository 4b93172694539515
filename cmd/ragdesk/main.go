package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/handlers"
	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/MegaGrindStone/ragdesk/internal/services"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configPath string
	serverURL  string
	model      string

	cfg    config
	logger *zap.Logger
	server services.RAGServer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "ragdesk",
		Short:        "Ask questions to a retrieval-augmented QA server",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&a.serverURL, "server", "", "QA server base URL, overrides the config")
	rootCmd.PersistentFlags().StringVarP(&a.model, "model", "m", "", "model answering the questions, overrides the config")

	rootCmd.AddCommand(
		a.askCmd(),
		a.chatCmd(),
		a.serveCmd(),
		a.switchCmd(),
		a.uploadCmd(),
		a.reindexCmd(),
		a.modelsCmd(),
		a.vectorStoreCmd(),
		a.historyCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, "ragdesk", "config.yaml")
}

func (a *app) init() error {
	// API keys and hosts for the model sources may come from a .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger

	server, err := services.NewRAGServer(cfg.ServerURL, cfg.ServerTimeout, logger)
	if err != nil {
		return err
	}
	a.server = server

	logger.Debug("Config loaded",
		zap.String("config", a.configPath),
		zap.String("server", cfg.ServerURL))

	return nil
}

// newController creates a controller for a command. store may be nil.
func (a *app) newController(view controller.View, store controller.Store, conversationID string) (*controller.Controller, error) {
	lister, err := a.cfg.Models.lister()
	if err != nil {
		return nil, err
	}

	return controller.New(a.options(view, lister, store, conversationID)), nil
}

func (a *app) options(view controller.View, lister controller.ModelLister, store controller.Store, conversationID string) controller.Options {
	return controller.Options{
		Server:         a.server,
		Models:         lister,
		Renderer:       services.NewMarkdown(),
		View:           view,
		Mode:           a.cfg.Mode,
		VectorStore:    a.cfg.VectorStore,
		Store:          store,
		ConversationID: conversationID,
		Logger:         a.logger,
	}
}

func (a *app) openStore() (services.BoltDB, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return services.BoltDB{}, fmt.Errorf("error getting user config dir: %w", err)
	}
	dir := filepath.Join(cfgDir, "ragdesk")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return services.BoltDB{}, fmt.Errorf("error creating config directory: %w", err)
	}
	return services.NewBoltDB(filepath.Join(dir, "store.db"))
}

func (a *app) newConversation(ctx context.Context, store services.BoltDB, title string) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	id, err := store.AddConversation(ctx, conv)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to add conversation: %w", err)
	}
	conv.ID = id
	return conv, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// ask runs one query to its end and reports lifecycle failures as an error.
func ask(ctx context.Context, c *controller.Controller, question, model string) error {
	q, err := c.Orchestrator.Submit(ctx, question, model)
	if err != nil {
		return err
	}
	if _, err := q.Wait(ctx); err != nil {
		return err
	}
	return nil
}

func (a *app) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			c, err := a.newController(newTerminalView(cmd.OutOrStdout()), nil, "")
			if err != nil {
				return err
			}
			return ask(ctx, c, strings.Join(args, " "), a.cfg.Model)
		},
	}
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Every line is a question, except for the commands:

  /pdf, /web            switch the retrieval system
  /upload <file.pdf>    upload and index a PDF
  /reindex              rebuild the document index
  /models               list the available models
  /model <name>         answer with another model
  /store [type]         list or switch the vector store
  /quit                 leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			conv, err := a.newConversation(ctx, store, "")
			if err != nil {
				return err
			}

			c, err := a.newController(newTerminalView(cmd.OutOrStdout()), store, conv.ID)
			if err != nil {
				return err
			}

			return a.repl(ctx, c, store, conv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) repl(
	ctx context.Context,
	c *controller.Controller,
	store services.BoltDB,
	conv models.Conversation,
	in io.Reader,
	out io.Writer,
) error {
	model := a.cfg.Model
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "? ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if conv.Title == "" {
				conv.Title = conversationTitle(line)
				if err := store.UpdateConversation(ctx, conv); err != nil {
					a.logger.Error("Failed to update conversation", zap.Error(err))
				}
			}
			// Failures are already on screen.
			if err := ask(ctx, c, line, model); err != nil && ctx.Err() != nil {
				return nil
			}
			continue
		}

		name, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		switch name {
		case "quit", "exit":
			return nil
		case "pdf", "web":
			_ = c.Modes.RequestSwitch(ctx, models.Mode(name))
		case "upload":
			_, _ = c.Controls.Upload(ctx, arg)
		case "reindex":
			_ = c.Controls.Reindex(ctx)
		case "models":
			if ms, err := c.Controls.RefreshModels(ctx); err == nil {
				for _, m := range ms {
					fmt.Fprintf(out, "  %s\n", m)
				}
			}
		case "model":
			model = arg
			fmt.Fprintf(out, "Using model %q\n", model)
		case "store":
			if arg != "" {
				_ = c.Controls.SwitchVectorStore(ctx, arg)
				continue
			}
			if vs, err := c.Controls.VectorStores(ctx); err == nil {
				printVectorStores(out, vs, c.Modes.VectorStore())
			}
		default:
			fmt.Fprintf(out, "Unknown command /%s\n", name)
		}
	}
}

func conversationTitle(question string) string {
	const maxTitle = 50
	r := []rune(question)
	if len(r) <= maxTitle {
		return question
	}
	return string(r[:maxTitle]) + "..."
}

func printVectorStores(out io.Writer, types []string, current string) {
	for _, t := range types {
		marker := " "
		if t == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, t)
	}
}

func (a *app) serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP with server-sent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = a.cfg.Port
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			conv, err := a.newConversation(cmd.Context(), store, "HTTP session "+time.Now().Format(time.DateTime))
			if err != nil {
				return err
			}

			lister, err := a.cfg.Models.lister()
			if err != nil {
				return err
			}
			m := handlers.NewMain(a.options(nil, lister, store, conv.ID))

			return a.serve(m, port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides the config")

	return cmd
}

func (a *app) serve(m *handlers.Main, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/system", m.HandleSystem)
	mux.HandleFunc("/vector-store", m.HandleVectorStore)
	mux.HandleFunc("/index", m.HandleIndex)
	mux.HandleFunc("/models", m.HandleModels)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			a.logger.Error("Failed to shutdown sse server", zap.Error(err))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		a.logger.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		a.logger.Info("Start shutdown", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("Graceful shutdown failed", zap.Error(err))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}
	return nil
}

func (a *app) switchCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "switch <pdf|web>",
		Short:     "Switch the retrieval system of the server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.ModePDF), string(models.ModeWeb)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseMode(args[0])
			if err != nil {
				return err
			}
			c, err := a.newController(newTerminalView(cmd.OutOrStdout()), nil, "")
			if err != nil {
				return err
			}
			return c.Modes.RequestSwitch(cmd.Context(), mode)
		},
	}
}

func (a *app) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF and index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newController(newTerminalView(cmd.OutOrStdout()), nil, "")
			if err != nil {
				return err
			}
			_, err = c.Controls.Upload(cmd.Context(), args[0])
			return err
		},
	}
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the server's document index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newController(newTerminalView(cmd.OutOrStdout()), nil, "")
			if err != nil {
				return err
			}
			return c.Controls.Reindex(cmd.Context())
		},
	}
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newController(controller.NopView{}, nil, "")
			if err != nil {
				return err
			}
			ms, err := c.Controls.RefreshModels(cmd.Context())
			if err != nil {
				msg, _ := c.Notifications.Current()
				return fmt.Errorf("%s: %w", msg.Message, err)
			}
			for _, m := range ms {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func (a *app) vectorStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vector-store [type]",
		Short: "List the vector stores, or switch to one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := a.newController(newTerminalView(out), nil, "")
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return c.Controls.SwitchVectorStore(cmd.Context(), args[0])
			}
			vs, err := c.Controls.VectorStores(cmd.Context())
			if err != nil {
				return err
			}
			printVectorStores(out, vs, c.Modes.VectorStore())
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "List past conversations, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				convs, err := store.Conversations(cmd.Context())
				if err != nil {
					return err
				}
				printConversations(cmd.OutOrStdout(), convs)
				return nil
			}

			msgs, err := store.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
}

func printConversations(out io.Writer, convs []models.Conversation) {
	for _, conv := range convs {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "%s  %s  %s\n", conv.ID, conv.CreatedAt.Format(time.DateTime), title)
	}
}

func printTranscript(out io.Writer, msgs []models.Message) {
	view := newTerminalView(out)
	for _, msg := range msgs {
		if msg.Role == models.RoleUser {
			view.MessageAppended(msg)
			continue
		}
		fmt.Fprintln(out, msg.Text)
	}
}
