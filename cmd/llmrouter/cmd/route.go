package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
	"github.com/entrepeneur4lyf/llmrouter/internal/gateway"
	"github.com/entrepeneur4lyf/llmrouter/internal/policy"
	"github.com/entrepeneur4lyf/llmrouter/internal/ratelimit"
	"github.com/entrepeneur4lyf/llmrouter/internal/registry"
	"github.com/entrepeneur4lyf/llmrouter/internal/router"
)

var (
	routeModel   string
	routePrompt  string
	routeSession string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Load config, build a router, and dispatch a single request",
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeModel, "model", "", "model id to pin, if any")
	routeCmd.Flags().StringVar(&routePrompt, "prompt", "hello", "user message content")
	routeCmd.Flags().StringVar(&routeSession, "session", "cli-session", "session id for rate limiting")
}

func buildRouter(ctx context.Context) (*router.Router, *registry.Registry, error) {
	reg := registry.New()
	result, err := reg.Load(ctx, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	for id, reason := range result.Rejected {
		log.Warn("provider rejected at load", "provider", id, "reason", reason)
	}
	log.Info("registry loaded", "providers", result.Loaded)

	fc, err := registry.LoadFileConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	lim := ratelimit.New(ratelimit.Limits{
		PerMinute: fc.RateLimit.PerMinute,
		PerHour:   fc.RateLimit.PerHour,
		PerDay:    fc.RateLimit.PerDay,
		Burst:     fc.RateLimit.Burst,
	})
	gw := gateway.New(gateway.DefaultConfig)
	pol := policy.NewFromConfig(0, fc.Policy)

	return router.New(reg, pol, lim, gw), reg, nil
}

func runRoute(c *cobra.Command, args []string) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, _, err := buildRouter(ctx)
	if err != nil {
		return err
	}

	result, err := r.Route(ctx, router.Request{
		Messages: []adapter.Message{{Role: "user", Content: routePrompt}},
		Model:    routeModel,
		Identity: router.Identity{SessionID: routeSession},
	})
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}

	fmt.Printf("provider=%s correlation_id=%s\n", result.ProviderID, result.CorrelationID)
	if result.Response != nil {
		fmt.Println(result.Response.Content)
	}
	return nil
}
