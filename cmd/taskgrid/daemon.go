package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/taskgrid/internal/audit"
	"github.com/fentz26/taskgrid/internal/config"
	"github.com/fentz26/taskgrid/internal/controlplane"
	"github.com/fentz26/taskgrid/internal/phase"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/fentz26/taskgrid/internal/store"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the taskgrid daemon",
	Long:  `Starts the taskgrid daemon which owns the task board and serves the HTTP API agents poll.`,
	RunE:  runDaemon,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the daemon in the background if it is not already running",
	RunE:  runUp,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting taskgrid daemon...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Path != "" {
		log.Printf("Loaded config from %s", cfg.Path)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	rules, err := phase.LoadRules(cfg.Phase.RulesFile)
	if err != nil {
		return err
	}
	classifier, err := phase.NewClassifier(rules)
	if err != nil {
		return err
	}

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	pdr := audit.NewPDRWriter(s)
	logger := log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	service := controlplane.NewService(cfg.Scheduler(), s, pdr, logger, scheduler.WithClassifier(classifier))
	server := controlplane.NewServer(service, s, cfg.Listen)

	if err := service.Restore(); err != nil {
		s.Close()
		return err
	}

	sched := service.Scheduler()
	sched.Start()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	sched.Stop()
	log.Println("Saving board state...")
	if err := service.Shutdown(); err != nil {
		log.Printf("Saving board state failed: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return runErr
}

func runUp(cmd *cobra.Command, args []string) error {
	if isDaemonRunning() {
		fmt.Println(Green("✓"), "Daemon already running at", apiAddr)
		return nil
	}
	fmt.Println(Yellow("⚡"), "Daemon not running. Starting background service...")
	return startDaemon()
}

func isDaemonRunning() bool {
	_, err := apiClient().Health()
	return err == nil
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	daemonArgs := []string{"daemon"}
	if configPath != "" {
		daemonArgs = append(daemonArgs, "--config", configPath)
	}
	cmd := exec.Command(exe, daemonArgs...)
	// Detach so the daemon survives this process.
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if isDaemonRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
