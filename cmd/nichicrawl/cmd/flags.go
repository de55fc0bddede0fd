package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/yokai-gen/nichicrawl/internal/card"
	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/ident"
)

// parseRange parses an inclusive "MIN,MAX" pair. A single value is a
// one-element range.
func parseRange(flag, s string) (ident.Range, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return ident.Range{}, invalidRange(flag, s)
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > ident.MaxPart {
			return ident.Range{}, invalidRange(flag, s)
		}
		vals[i] = v
	}
	if len(vals) == 1 {
		return ident.Single(vals[0]), nil
	}
	return ident.Range{Start: vals[0], End: vals[1]}, nil
}

func invalidRange(flag, s string) error {
	return crawlerr.New(crawlerr.ErrCodeInvalidRange, fmt.Sprintf("--%s: expected MIN,MAX, got %q", flag, s), nil)
}

// pairRange converts a validated [start, end] config pair.
func pairRange(pair []int) ident.Range {
	return ident.Range{Start: pair[0], End: pair[1]}
}

// cardConfig derives the remote session configuration.
func cardConfig(r config.RemoteConfig) card.Config {
	cfg := card.DefaultConfig()
	cfg.CardURL = r.CardURL
	cfg.ImageBaseURL = r.ImageBaseURL
	cfg.UserAgent = r.UserAgent
	cfg.Timeout = r.Timeout
	cfg.Retry.MaxRetries = r.Retries
	if r.RetryDelay > 0 {
		cfg.Retry.InitialDelay = r.RetryDelay
	}
	return cfg
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
