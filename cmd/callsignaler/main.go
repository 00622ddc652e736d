package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/llinks/callSignaler/api"
	"github.com/llinks/callSignaler/pkg/call"
	"github.com/llinks/callSignaler/pkg/discovery"
	"github.com/llinks/callSignaler/pkg/signaling/memory"
	"github.com/llinks/callSignaler/pkg/ui"
)

const discoverTimeout = 5 * time.Second

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	var (
		server string
		chat   string
		uid    string
	)

	cmd := &cobra.Command{
		Use:   "callsignaler",
		Short: "Voice call signaling over a shared document store",
	}

	cmd.PersistentFlags().StringVar(&server, "server", "", "Signaling store URL (discovered via mDNS when empty)")
	cmd.PersistentFlags().StringVar(&chat, "chat", "default", "Chat the call belongs to")
	cmd.PersistentFlags().StringVar(&uid, "uid", "", "Your user id")

	callCmd := &cobra.Command{
		Use:   "call <toUid>",
		Short: "Place a call to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if uid == "" {
				return fmt.Errorf("--uid is required")
			}
			baseURL, err := resolveServer(cmd.Context(), server)
			if err != nil {
				return err
			}
			store := api.NewRemoteStore(baseURL, uid)
			ctrl := call.NewCaller(store, chat, uid, args[0])
			model := ui.InitialCallerModel(ctrl, args[0])
			if _, err := tea.NewProgram(model).Run(); err != nil {
				return fmt.Errorf("ui stopped: %w", err)
			}
			return nil
		},
	}

	answerCmd := &cobra.Command{
		Use:   "answer",
		Short: "Wait for incoming calls and answer them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uid == "" {
				return fmt.Errorf("--uid is required")
			}
			baseURL, err := resolveServer(cmd.Context(), server)
			if err != nil {
				return err
			}
			store := api.NewRemoteStore(baseURL, uid)
			app := call.NewCalleeApp(store, chat, uid)
			model := ui.InitialCalleeModel(app, uid)
			if _, err := tea.NewProgram(model).Run(); err != nil {
				return fmt.Errorf("ui stopped: %w", err)
			}
			return nil
		},
	}

	var (
		port int
		name string
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory signaling store server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), port, name)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&name, "name", "callsignaler", "mDNS instance name")

	cmd.AddCommand(callCmd)
	cmd.AddCommand(answerCmd)
	cmd.AddCommand(serveCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// resolveServer returns the given URL, or browses the local network for an
// announced store when none was given.
func resolveServer(ctx context.Context, server string) (string, error) {
	if server != "" {
		return server, nil
	}

	fmt.Println("Looking for a signaling server on the local network ...")
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	adapter := &discovery.MDNSAdapter{}
	results := adapter.Discover(ctx, discovery.DefaultServerType+"."+discovery.DefaultDomain+".")
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no signaling server found, pass --server")
		case res, ok := <-results:
			if !ok {
				return "", fmt.Errorf("no signaling server found, pass --server")
			}
			if res.Error != nil {
				return "", fmt.Errorf("mDNS browse failed: %w", res.Error)
			}
			if len(res.Services) > 0 {
				svc := res.Services[0]
				url := fmt.Sprintf("http://%s", net.JoinHostPort(svc.Addr.String(), fmt.Sprintf("%d", svc.Port)))
				fmt.Printf("Using %s (%s)\n", svc.Name, url)
				return url, nil
			}
		}
	}
}

// runServer hosts the HTTP store and announces it over mDNS until ctx is
// cancelled or the listener fails.
func runServer(ctx context.Context, port int, name string) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: api.NewServer(memory.NewStore()),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Signaling store listening", "addr", srv.Addr)
		fmt.Printf("Signaling store listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		adapter := &discovery.MDNSAdapter{}
		return adapter.Announce(ctx, discovery.ServiceInfo{
			Name:   name,
			Type:   discovery.DefaultServerType,
			Domain: discovery.DefaultDomain,
			Port:   port,
		})
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
