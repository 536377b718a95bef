package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/sdr/internal/api"
	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/config"
	"github.com/kalambet/sdr/internal/evaluation"
	"github.com/kalambet/sdr/internal/outreach"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/search"
	"github.com/kalambet/sdr/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sdr server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sdr server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sdr server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sdr.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// buildDeps wires the services over one store and one completion client.
func buildDeps(cfg config.Config, store *storage.Store, llm *completion.Client) api.Deps {
	return api.Deps{
		AppName:  "SDR",
		Store:    store,
		Scoring:  scoring.NewEngine(store, llm, scoring.Options{LocalAggregate: cfg.Scoring.LocalAggregate}),
		Outreach: outreach.NewGenerator(store, llm),
		Evals:    evaluation.NewHarness(store, llm),
		Search:   search.New(store, cfg.Search.DefaultLimit),
	}
}

func runServer(ctx context.Context, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "sdr version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sdr is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sdr is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	llm, err := completion.New(completion.Config{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating completion client: %w", err)
	}
	slog.Info("completion client ready", "base_url", cfg.Completion.BaseURL, "model", llm.Model())

	deps := buildDeps(cfg, store, llm)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sdr listening on %s\n", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sdr is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sdr (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sdr (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    "http://" + cfg.Server.Addr(),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Completion", "%s (%s)", cfg.Completion.Model, cfg.Completion.BaseURL)
	if cfg.Completion.APIKey == "" {
		printStatus("API key", "%s", colorize(colorYellow, "not set"))
	} else {
		printStatus("API key", "set")
	}

	if running {
		if stats, err := fetchPipeline(ctx, client); err == nil {
			total := 0
			for _, n := range stats {
				total += n
			}
			printStatus("Leads", "%d", total)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func fetchPipeline(ctx context.Context, client *apiClient) (map[storage.PipelineStage]int, error) {
	resp, err := client.get(ctx, "/api/leads/stats/pipeline")
	if err != nil {
		return nil, err
	}
	var stats map[storage.PipelineStage]int
	if err := decodeJSON(resp, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
