package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/internal/doctor"
	"github.com/aiwhisperer/aiwhisperer/internal/rfc"
)

func buildServeCmd() *cobra.Command {
	var agentID string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a supervised interactive session",
		Long: `Serve starts the full stack: a monitored session with the chosen
agent, the intervention engine, the RFC drift watcher, the scheduled
health runner, and a metrics endpoint. Input is read line by line from
stdin; Ctrl-D or an interrupt shuts everything down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), agentID, listenAddr)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "alice", "Agent persona to start with")
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9464", "Address for the metrics endpoint (empty disables)")
	return cmd
}

func runServe(ctx context.Context, agentID, listenAddr string) error {
	a, err := newApp(appOptions{Supervise: true})
	if err != nil {
		return err
	}

	if err := a.paths.Bootstrap(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	// RFC edits outside the tool surface still mark derived plans as
	// drifted.
	watcher, err := rfc.NewWatcher(a.paths, a.plans.CheckDriftFor, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "rfc watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	if a.cfg.Health.Schedule != "" {
		scheduler, err := doctor.NewScheduler(a.cfg.Health.Schedule, a.health, a.logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if listenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		server := &http.Server{Addr: listenAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn(ctx, "metrics server failed", "error", err)
			}
		}()
		defer server.Shutdown(context.Background())
		a.logger.Info(ctx, "metrics endpoint up", "addr", listenAddr)
	}

	session, err := a.manager.Create(ctx, agentID)
	if err != nil {
		return err
	}

	fmt.Printf("session %s with agent %s; type a message, Ctrl-D to quit\n", session.ID, agentID)
	return repl(ctx, a, session.ID)
}

// repl drives the interactive loop until EOF or cancellation.
func repl(ctx context.Context, a *app, sessionID string) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				if err := <-scanErr; err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			session, found := a.manager.Get(sessionID)
			if !found {
				return fmt.Errorf("session %s is gone", sessionID)
			}
			result, err := session.Send(ctx, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "turn failed:", err)
				continue
			}
			fmt.Printf("[%s] %s\n", session.AgentID(), result.Content)
		}
	}
}
