/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/mikelane/contribfeed/internal/aggregate"
	"github.com/mikelane/contribfeed/internal/config"
	"github.com/mikelane/contribfeed/internal/fetcher"
	"github.com/mikelane/contribfeed/internal/github"
	"github.com/mikelane/contribfeed/internal/metrics"
	"github.com/mikelane/contribfeed/internal/normalize"
	"github.com/mikelane/contribfeed/internal/selector"
)

type flags struct {
	configPath  string
	login       string
	repos       []string
	policy      string
	limit       int
	verbose     bool
	metricsFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, github.ErrNotAuthenticated) {
			fmt.Fprintln(os.Stderr, "not authenticated: set GITHUB_TOKEN to a valid token")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "contribfeed",
		Short:         "Aggregate a GitHub user's contributions into one ordered feed",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&f.login, "login", "", "User to aggregate (defaults to the token owner)")
	fs.StringArrayVar(&f.repos, "repo", nil, "Repository owner/name to read (repeatable); selected automatically when omitted")
	fs.StringVar(&f.policy, "policy", "", "Repository selection policy: license or permissive")
	fs.IntVar(&f.limit, "limit", -1, "Maximum number of events to print, 0 for all")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose development logging")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	logger := zap.New(zap.UseDevMode(f.verbose), zap.WriteTo(cmd.ErrOrStderr()))
	logf.SetLogger(logger)
	ctx = logf.IntoContext(ctx, logger)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, cmd, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	engine, err := newEngine(cfg, recorder)
	if err != nil {
		return err
	}

	result, err := engine.Aggregate(ctx, aggregate.Request{Login: cfg.Login, Repositories: cfg.Repositories})
	if err != nil {
		return err
	}

	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			logger.Error(err, "Failed to write metrics", "path", f.metricsFile)
		}
	}
	return printResult(cmd.OutOrStdout(), result)
}

// applyFlags overrides configuration with the flags that were set
func applyFlags(cfg *config.Config, cmd *cobra.Command, f flags) {
	fs := cmd.Flags()
	if fs.Changed("login") {
		cfg.Login = f.login
	}
	if fs.Changed("repo") {
		cfg.Repositories = f.repos
	}
	if fs.Changed("policy") {
		cfg.Selector.Policy = f.policy
	}
	if fs.Changed("limit") {
		cfg.Aggregation.MaxEvents = &f.limit
	}
}

func newEngine(cfg *config.Config, recorder *metrics.Recorder) (*aggregate.Engine, error) {
	client, err := github.NewClient(github.Options{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.Timeout,
		QPS:     cfg.GitHub.QPS,
		Burst:   cfg.GitHub.Burst,
		Retry: github.RetryConfig{
			MaxRetries:     *cfg.GitHub.MaxRetries,
			InitialBackoff: cfg.GitHub.InitialBackoff,
			MaxBackoff:     cfg.GitHub.MaxBackoff,
			BackoffFactor:  github.DefaultRetryConfig().BackoffFactor,
		},
		Metrics: recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("create github client: %w", err)
	}

	policy, err := selector.PolicyByName(cfg.Selector.Policy, cfg.Selector.MinStars, cfg.Selector.MinForks)
	if err != nil {
		return nil, err
	}

	agg := cfg.Aggregation
	return &aggregate.Engine{
		Client: client,
		Normalizer: normalize.New(normalize.Options{
			WebURL:          cfg.GitHub.WebURL,
			TimestampPolicy: normalize.TimestampPolicy(agg.TimestampPolicy),
		}),
		Selector: selector.New(client, policy),
		Metrics:  recorder,
		Options: aggregate.Options{
			BatchSize:              agg.BatchSize,
			BatchDelay:             agg.BatchDelay,
			Concurrency:            agg.Concurrency,
			MaxEvents:              *agg.MaxEvents,
			IncludeAccountActivity: *agg.IncludeAccountActivity,
			FeedMaxPages:           agg.FeedMaxPages,
			Fetch: fetcher.Options{
				PageSize:          cfg.GitHub.PageSize,
				ParentLimit:       agg.ParentLimit,
				ParentConcurrency: agg.ParentConcurrency,
			},
		},
	}, nil
}

func printResult(w io.Writer, result *aggregate.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
