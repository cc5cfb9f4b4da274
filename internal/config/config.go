// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config loads contribfeed settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file
const (
	EnvToken   = "GITHUB_TOKEN"
	EnvLogin   = "CONTRIBFEED_LOGIN"
	EnvBaseURL = "GITHUB_API_URL"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

type GitHub struct {
	// BaseURL is the API root. Empty means api.github.com.
	BaseURL        string        `yaml:"base_url"`
	WebURL         string        `yaml:"web_url"`
	Timeout        time.Duration `yaml:"timeout"`
	QPS            float32       `yaml:"qps"`
	Burst          int           `yaml:"burst"`
	MaxRetries     *int          `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PageSize       int           `yaml:"page_size"`

	// Token is only read from the environment
	Token string `yaml:"-"`
}

type Aggregation struct {
	BatchSize              int           `yaml:"batch_size"`
	BatchDelay             time.Duration `yaml:"batch_delay"`
	Concurrency            int           `yaml:"concurrency"`
	ParentLimit            int           `yaml:"parent_limit"`
	ParentConcurrency      int           `yaml:"parent_concurrency"`
	FeedMaxPages           int           `yaml:"feed_max_pages"`
	MaxEvents              *int          `yaml:"max_events"`
	TimestampPolicy        string        `yaml:"timestamp_policy"`
	IncludeAccountActivity *bool         `yaml:"include_account_activity"`
}

type Selector struct {
	Policy   string `yaml:"policy"`
	MinStars int    `yaml:"min_stars"`
	MinForks int    `yaml:"min_forks"`
}

type Config struct {
	Login        string      `yaml:"login"`
	Repositories []string    `yaml:"repositories"`
	GitHub       GitHub      `yaml:"github"`
	Aggregation  Aggregation `yaml:"aggregation"`
	Selector     Selector    `yaml:"selector"`
}

// Load reads path (optional), applies defaults and then the environment.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	c.applyDefaults()
	c.applyEnv()
	return &c, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.GitHub.WebURL == "" {
		c.GitHub.WebURL = "https://github.com"
	}
	if c.GitHub.Timeout == 0 {
		c.GitHub.Timeout = 30 * time.Second
	}
	if c.GitHub.QPS == 0 {
		c.GitHub.QPS = 10
	}
	if c.GitHub.Burst == 0 {
		c.GitHub.Burst = 20
	}
	if c.GitHub.MaxRetries == nil {
		c.GitHub.MaxRetries = intPtr(3)
	}
	if c.GitHub.InitialBackoff == 0 {
		c.GitHub.InitialBackoff = 100 * time.Millisecond
	}
	if c.GitHub.MaxBackoff == 0 {
		c.GitHub.MaxBackoff = 30 * time.Second
	}
	if c.GitHub.PageSize == 0 {
		c.GitHub.PageSize = 100
	}

	a := &c.Aggregation
	if a.BatchSize == 0 {
		a.BatchSize = 10
	}
	if a.BatchDelay == 0 {
		a.BatchDelay = 200 * time.Millisecond
	}
	if a.Concurrency == 0 {
		a.Concurrency = 8
	}
	if a.ParentLimit == 0 {
		a.ParentLimit = 50
	}
	if a.ParentConcurrency == 0 {
		a.ParentConcurrency = 5
	}
	if a.FeedMaxPages == 0 {
		a.FeedMaxPages = 3
	}
	if a.MaxEvents == nil {
		a.MaxEvents = intPtr(100)
	}
	if a.TimestampPolicy == "" {
		a.TimestampPolicy = "updated"
	}
	if a.IncludeAccountActivity == nil {
		t := true
		a.IncludeAccountActivity = &t
	}

	if c.Selector.Policy == "" {
		c.Selector.Policy = "license"
	}
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvToken); ok {
		c.GitHub.Token = v
	}
	if v, ok := os.LookupEnv(EnvLogin); ok && v != "" {
		c.Login = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok && v != "" {
		c.GitHub.BaseURL = v
	}
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.GitHub.PageSize >= 1 && c.GitHub.PageSize <= 100, "github.page_size must be within 1..100, got %d", c.GitHub.PageSize)
	check(c.GitHub.QPS > 0, "github.qps must be positive, got %v", c.GitHub.QPS)
	check(c.GitHub.Burst >= 1, "github.burst must be at least 1, got %d", c.GitHub.Burst)
	check(c.GitHub.MaxRetries != nil && *c.GitHub.MaxRetries >= 0, "github.max_retries must not be negative")
	check(c.GitHub.Timeout > 0, "github.timeout must be positive, got %v", c.GitHub.Timeout)
	check(c.GitHub.MaxBackoff >= c.GitHub.InitialBackoff, "github.max_backoff %v is below initial_backoff %v", c.GitHub.MaxBackoff, c.GitHub.InitialBackoff)

	a := c.Aggregation
	check(a.BatchSize >= 1, "aggregation.batch_size must be at least 1, got %d", a.BatchSize)
	check(a.BatchDelay >= 0, "aggregation.batch_delay must not be negative, got %v", a.BatchDelay)
	check(a.Concurrency >= 1, "aggregation.concurrency must be at least 1, got %d", a.Concurrency)
	check(a.ParentLimit >= 1, "aggregation.parent_limit must be at least 1, got %d", a.ParentLimit)
	check(a.ParentConcurrency >= 1, "aggregation.parent_concurrency must be at least 1, got %d", a.ParentConcurrency)
	check(a.FeedMaxPages >= 1, "aggregation.feed_max_pages must be at least 1, got %d", a.FeedMaxPages)
	check(a.MaxEvents != nil && *a.MaxEvents >= 0, "aggregation.max_events must not be negative")
	check(a.TimestampPolicy == "updated" || a.TimestampPolicy == "created",
		"aggregation.timestamp_policy must be updated or created, got %q", a.TimestampPolicy)

	check(c.Selector.Policy == "license" || c.Selector.Policy == "permissive",
		"selector.policy must be license or permissive, got %q", c.Selector.Policy)
	check(c.Selector.MinStars >= 0 && c.Selector.MinForks >= 0, "selector thresholds must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func intPtr(i int) *int { return &i }
