// Package preflight verifies the service's dependencies before the server
// starts taking traffic: database reachability, the two model microservices
// and required configuration.
package preflight

import (
	"context"
	"log"
	"net/http"
	"time"

	"cybersync/internal/config"
	"cybersync/internal/database"
)

// Check statuses
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name    string
	Status  string
	Message string
	Error   error
}

// Checker runs the startup checks.
type Checker struct {
	db  *database.MongoDB
	cfg *config.Config

	httpClient *http.Client
}

// NewChecker creates a preflight checker.
func NewChecker(db *database.MongoDB, cfg *config.Config) *Checker {
	return &Checker{
		db:         db,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// RunAll runs every check and logs a summary. Model service checks warn
// rather than fail: chat degrades gracefully when they are down, so their
// absence must not block startup.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabase(ctx),
		c.checkConfig(),
		c.checkUpstream("encoder service", c.cfg.EncoderURL),
		c.checkUpstream("model service", c.cfg.ModelURL),
	}

	var passed, failed, warnings int
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			log.Printf("   ✅ %s: %s", r.Name, r.Message)
			passed++
		case StatusFail:
			log.Printf("   ❌ %s: %s", r.Name, r.Message)
			if r.Error != nil {
				log.Printf("      Error: %v", r.Error)
			}
			failed++
		case StatusWarning:
			log.Printf("   ⚠️  %s: %s", r.Name, r.Message)
			warnings++
		}
	}
	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures reports whether any check failed.
func HasFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.db.Ping(pingCtx); err != nil {
		return CheckResult{Name: "database", Status: StatusFail, Message: "MongoDB unreachable", Error: err}
	}
	return CheckResult{Name: "database", Status: StatusPass, Message: "MongoDB reachable"}
}

func (c *Checker) checkConfig() CheckResult {
	if c.cfg.ScoreThreshold < 0 || c.cfg.ScoreThreshold > 1 {
		return CheckResult{Name: "config", Status: StatusFail, Message: "SCORE_THRESHOLD must be between 0 and 1"}
	}
	if c.cfg.ChunkSizeBytes <= 0 {
		return CheckResult{Name: "config", Status: StatusFail, Message: "CHUNK_SIZE_BYTES must be positive"}
	}
	return CheckResult{Name: "config", Status: StatusPass, Message: "configuration valid"}
}

// checkUpstream probes a model microservice endpoint. Any HTTP response
// counts as alive; these services reject GETs but answering at all proves
// reachability.
func (c *Checker) checkUpstream(name, url string) CheckResult {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{Name: name, Status: StatusWarning, Message: "invalid URL", Error: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckResult{Name: name, Status: StatusWarning, Message: "unreachable, chat will degrade until it comes up", Error: err}
	}
	resp.Body.Close()

	return CheckResult{Name: name, Status: StatusPass, Message: "reachable"}
}
