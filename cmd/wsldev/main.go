// WSL Dev Bridge - Command Line Entry Point
// One binary, one default action: make the browser debug port reachable
// from both sides of the WSL boundary. Everything else is a mode flag.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/browser"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/config"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/logging"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/orchestrator"
)

var (
	// Version is set at build time
	Version = "dev"

	// Flags
	configPath  string
	logLevel    string
	logFile     string
	browserName string
	debugPort   int
	httpPort    int
	profileDir  string

	modeDiagnose   bool
	modeValidate   bool
	modeServe      bool
	modeTest       bool
	modeCleanup    bool
	modeDetectOnly bool
	modeRelay      bool
	deepCheck      bool
)

var rootCmd = &cobra.Command{
	Use:   "wsldev",
	Short: "WSL Dev Bridge - Browser debug port across the WSL boundary",
	Long: `WSL Dev Bridge relaunches a browser with remote debugging enabled and
makes the debug port reachable from both the Windows host and the WSL
guest: it scopes a firewall rule to the WSL subnet, bridges the port
with netsh portproxy, and verifies both endpoints answer the DevTools
version handshake.

Run it without flags on the Windows side (elevated) to set everything
up. Run it inside WSL to verify the host endpoint is reachable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("WSL Dev Bridge %s\n", Version)
		fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		config.DefaultPath(),
		"Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l",
		"",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file",
		"",
		"Log file path (default: stderr only)")

	rootCmd.Flags().StringVarP(&browserName, "browser", "b", "", "Browser to manage (chrome, firefox, librewolf)")
	rootCmd.Flags().IntVarP(&debugPort, "port", "p", 0, "Remote debugging port")
	rootCmd.Flags().IntVar(&httpPort, "http-port", 0, "Port for the built-in test page server")
	rootCmd.Flags().StringVar(&profileDir, "profile-dir", "", "Throwaway browser profile directory")

	rootCmd.Flags().BoolVar(&modeDiagnose, "diagnose", false, "Run every check, report all findings, exit 0")
	rootCmd.Flags().BoolVar(&modeValidate, "validate", false, "Check the debug endpoint once; nonzero exit on failure")
	rootCmd.Flags().BoolVar(&modeServe, "serve", false, "Serve the built-in test page and block")
	rootCmd.Flags().BoolVar(&modeTest, "test", false, "Full setup, then open the built-in test page")
	rootCmd.Flags().BoolVar(&modeCleanup, "cleanup", false, "Tear down browser, bridge, and firewall rule")
	rootCmd.Flags().BoolVar(&modeDetectOnly, "detect-only", false, "Print the detected topology and exit")
	rootCmd.Flags().BoolVar(&modeRelay, "relay", false, "Guest-side loopback relay to the host debug port; blocks")
	rootCmd.Flags().BoolVar(&deepCheck, "deep", false, "Also dial the DevTools websocket during verification")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
	}

	kind, err := browser.ParseKind(cfg.Browser)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := orchestrator.New(orchestrator.Options{
		Browser:      kind,
		DebugPort:    cfg.DebugPort,
		ProfileDir:   cfg.ProfileDir,
		CheckTimeout: cfg.CheckTimeout,
		Deep:         deepCheck,
	})

	switch {
	case modeDetectOnly:
		return runDetect(ctx)
	case modeDiagnose:
		runDiagnose(ctx, o)
		return nil
	case modeValidate:
		return runValidate(ctx, o)
	case modeCleanup:
		return o.Cleanup(ctx)
	case modeServe:
		return runServe(ctx, cfg.HTTPPort)
	case modeRelay:
		return runRelay(ctx, cfg.DebugPort)
	case modeTest:
		return runTest(ctx, cfg, kind)
	default:
		return printReport(o.Run(ctx))
	}
}

// loadConfig resolves the effective configuration: file and environment
// first, explicit flags last.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("browser") {
		cfg.Browser = browserName
	}
	if cmd.Flags().Changed("port") {
		cfg.DebugPort = debugPort
	}
	if cmd.Flags().Changed("http-port") {
		cfg.HTTPPort = httpPort
	}
	if cmd.Flags().Changed("profile-dir") {
		cfg.ProfileDir = profileDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	return cfg, nil
}
