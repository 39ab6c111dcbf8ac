package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gourdian25/gourdianfanout"
)

func newEmitCmd(opts *rootOptions) *cobra.Command {
	var (
		level  string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "emit [flags] message...",
		Short: "Write one event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := gourdianfanout.ParseLevel(level)
			if err != nil {
				return err
			}
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}

			p, _, err := openPipeline(cmd, opts)
			if err != nil {
				return err
			}
			p.Submit(lvl, strings.Join(args, " "), parsed)
			return closePipeline(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "info", "event severity")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "structured field as key=value (repeatable)")
	return cmd
}

// parseFields turns key=value pairs into fields. Numeric and boolean values
// keep their type.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", pair)
		}
		fields[key] = typedValue(value)
	}
	return fields, nil
}

func typedValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func newPipeCmd(opts *rootOptions) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Write one event per line read from stdin",
		Long: "pipe reads stdin line by line and writes each non-empty line as an event. " +
			"A leading LEVEL: prefix (for example \"ERROR: disk full\") overrides --level.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defaultLevel, err := gourdianfanout.ParseLevel(level)
			if err != nil {
				return err
			}

			p, _, err := openPipeline(cmd, opts)
			if err != nil {
				return err
			}

			var lines int
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.TrimSpace(line) == "" {
					continue
				}
				lvl, msg := splitLevelPrefix(line, defaultLevel)
				p.Submit(lvl, msg, nil)
				lines++
			}
			scanErr := scanner.Err()

			if err := closePipeline(cmd.Context(), p); err != nil {
				return err
			}
			if scanErr != nil {
				return fmt.Errorf("failed to read stdin: %w", scanErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events written\n", lines)
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "info", "severity for lines without a LEVEL: prefix")
	return cmd
}

// splitLevelPrefix recognizes "LEVEL: message" lines.
func splitLevelPrefix(line string, fallback gourdianfanout.Level) (gourdianfanout.Level, string) {
	prefix, rest, ok := strings.Cut(line, ":")
	if !ok {
		return fallback, line
	}
	lvl, err := gourdianfanout.ParseLevel(prefix)
	if err != nil {
		return fallback, line
	}
	return lvl, strings.TrimSpace(rest)
}

func newSegmentsCmd(opts *rootOptions) *cobra.Command {
	var stream string

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List segment files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			streams := gourdianfanout.Streams()
			if stream != "" {
				s, err := gourdianfanout.ParseStream(stream)
				if err != nil {
					return err
				}
				streams = []gourdianfanout.Stream{s}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STREAM\tDATE\tSEQ\tSIZE\tPATH")
			for _, s := range streams {
				segments, err := gourdianfanout.ListSegments(fc.LogsDir, s)
				if err != nil {
					return err
				}
				for _, seg := range segments {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", seg.Stream, seg.Date, seg.Sequence, seg.Size, seg.Path)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&stream, "stream", "s", "", "only list this stream")
	return cmd
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and record the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, fc, err := openPipeline(cmd, opts)
			if err != nil {
				return err
			}

			cfg := p.Config()
			fields := map[string]any{
				"log_directory":          cfg.LogsDir,
				"max_segment_size_bytes": cfg.MaxBytes,
				"retained_segment_count": cfg.RetainCount,
				"minimum_severity":       cfg.MinLevel.String(),
			}

			var checkErr error
			if fc.Scheduler.ProviderName == "" && fc.Scheduler.ConnectionString == "" {
				fields["scheduler"] = "not configured"
			} else if store, err := fc.Scheduler.Resolve(); err != nil {
				checkErr = err
			} else {
				fields["scheduler"] = store.String()
			}

			if checkErr != nil {
				fields["error"] = checkErr.Error()
				p.Submit(gourdianfanout.ERROR, "configuration invalid", fields)
			} else {
				p.Submit(gourdianfanout.INFO, "configuration valid", fields)
			}
			if err := closePipeline(cmd.Context(), p); err != nil {
				return err
			}
			if checkErr != nil {
				return checkErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipeline metrics over HTTP",
		Long:  "serve exposes /metrics (Prometheus) and /healthz, recording every request in the access log.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := openPipeline(cmd, opts)
			if err != nil {
				return err
			}
			logger := slog.New(gourdianfanout.NewSlogHandler(p, nil))

			mux := http.NewServeMux()
			mux.Handle("/metrics", gourdianfanout.MetricsHandler(p))
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok\n"))
			})
			srv := &http.Server{
				Addr:              addr,
				Handler:           gourdianfanout.AccessLog(p, gourdianfanout.WithExcludePaths("/healthz"))(mux),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("metrics server started", "addr", addr)

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", "error", err)
					_ = closePipeline(context.Background(), p)
					return err
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown", "error", err)
			}
			logger.Info("metrics server stopped")
			return closePipeline(context.Background(), p)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9464", "listen address")
	return cmd
}

func closePipeline(ctx context.Context, p *gourdianfanout.Pipeline) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.Close(ctx); err != nil {
		return fmt.Errorf("failed to drain log streams: %w", err)
	}
	return nil
}
