// Package main provides the CLI entry point for proxyd.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relaymesh/proxyd/internal/config"
	"github.com/relaymesh/proxyd/internal/logging"
	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/system"

	_ "github.com/relaymesh/proxyd/internal/misc"
	_ "github.com/relaymesh/proxyd/internal/route"
	_ "github.com/relaymesh/proxyd/internal/shadowsocks"
	_ "github.com/relaymesh/proxyd/internal/socks5"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "proxyd",
		Short:   "proxyd - pluggable TCP/UDP proxy engine",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var stdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start listeners and relay traffic per the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			metrics.Default()
			if cfg.Metrics.Listen != "" {
				go serveMetrics(cfg.Metrics.Listen, logger)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if stdio {
				return serveStdio(ctx, cfg)
			}

			opts := system.Options{}
			engine := proxycore.NewEngine(proxycore.Global(), system.NewListenerFunc(opts, logger), logger)
			if err := engine.Load(ctx, cfg); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("shutting down", "signal", sig.String())
			return engine.Close()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "proxyd.yaml", "Path to the configuration file")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Drive a single connection over stdin/stdout instead of opening listeners")
	return cmd
}

// serveStdio wires system.StdioStream directly as the accepted stream for
// the single configured listener's handler, skipping the listener
// entirely — mirrors the original's stdio-stream debugging entry point.
func serveStdio(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Listeners) != 1 {
		return errors.New("stdio mode requires exactly one configured listener")
	}
	engine := proxycore.NewEngine(proxycore.Global(), nil, nil)
	engine.SetConfig(cfg)
	handler, err := engine.GetHandler(ctx, cfg.Listeners[0].Handler)
	if err != nil {
		return err
	}
	stream := system.NewStdioStream(os.Stdin, os.Stdout)
	return handler.HandleStream(ctx, stream)
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server exited", logging.KeyError, err)
	}
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse the configuration and report any errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
			okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
			if err != nil {
				fmt.Println(errStyle.Render("FAIL") + "  " + err.Error())
				return err
			}
			size := "unknown size"
			if info, statErr := os.Stat(configPath); statErr == nil {
				size = byteCount(uint64(info.Size()))
			}
			fmt.Println(okStyle.Render("OK") + fmt.Sprintf("  %d listener(s), %d handler(s), %d connector(s) (%s, %s)",
				len(cfg.Listeners), len(cfg.Handlers), len(cfg.Connectors), configPath, size))
			for _, l := range cfg.Listeners {
				fmt.Printf("  listener %-16s %-22s -> handler %s\n", l.Name, l.Endpoint, l.Handler)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "proxyd.yaml", "Path to the configuration file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the proxyd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("proxyd %s\n", Version)
			return nil
		},
	}
}

// initCmd runs an interactive wizard that writes a starter configuration
// file, covering the two front-end handler types this engine ships: a
// CONNECT-only SOCKS5 listener and a Shadowsocks listener.
func initCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				listenerName = "front"
				endpoint     = "0.0.0.0:1080"
				handlerKind  = "socks5"
				ssMethod     = "2022-blake3-aes-256-gcm"
				ssPassword   = ""
				logLevel     = "info"
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Listener name").
						Value(&listenerName),
					huh.NewInput().
						Title("Listen endpoint (host:port)").
						Value(&endpoint),
					huh.NewSelect[string]().
						Title("Front-end protocol").
						Options(
							huh.NewOption("SOCKS5 (CONNECT only)", "socks5"),
							huh.NewOption("Shadowsocks", "shadowsocks"),
						).
						Value(&handlerKind),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Shadowsocks AEAD method").
						Description("e.g. 2022-blake3-aes-256-gcm, aes-256-gcm").
						Value(&ssMethod),
					huh.NewInput().
						Title("Shadowsocks password").
						EchoMode(huh.EchoModePassword).
						Value(&ssPassword),
				).WithHideFunc(func() bool { return handlerKind != "shadowsocks" }),
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Log level").
						Options(
							huh.NewOption("debug", "debug"),
							huh.NewOption("info", "info"),
							huh.NewOption("warn", "warn"),
							huh.NewOption("error", "error"),
						).
						Value(&logLevel),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			handlerName := handlerKind
			handlerSettings := map[string]any{"connector": ""}
			connectors := map[string]any{}
			if handlerKind == "shadowsocks" {
				handlerSettings = map[string]any{
					"method":   ssMethod,
					"password": ssPassword,
				}
			}

			doc := map[string]any{
				"listeners": []map[string]any{
					{"name": listenerName, "endpoint": endpoint, "handler": handlerName},
				},
				"handlers": map[string]any{
					handlerName: map[string]any{"type": handlerKind, "settings": handlerSettings},
				},
				"connectors": connectors,
				"logging":    map[string]any{"level": logLevel, "format": "text"},
			}

			out, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return err
			}

			okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
			fmt.Println(okStyle.Render("wrote") + "  " + outPath + " (" + byteCount(uint64(len(out))) + ")")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "proxyd.yaml", "Path to write the generated configuration")
	return cmd
}

// byteCount renders n bytes in human-readable form for the validate and
// init command output.
func byteCount(n uint64) string {
	return humanize.Bytes(n)
}
