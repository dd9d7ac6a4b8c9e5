package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal"
	"github.com/tinyland-inc/dlrelay/pkg/channels"
	"github.com/tinyland-inc/dlrelay/pkg/config"
	"github.com/tinyland-inc/dlrelay/pkg/directline"
	httpgateway "github.com/tinyland-inc/dlrelay/pkg/gateway"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/relay"
	"github.com/tinyland-inc/dlrelay/pkg/session"
	"github.com/tinyland-inc/dlrelay/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config (%s): %w", internal.GetConfigPath(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		fmt.Printf("Warning: tracing setup failed: %v\n", err)
	} else if cfg.Telemetry.Enabled {
		fmt.Printf("✓ Tracing to %s\n", cfg.Telemetry.Endpoint)
	}

	server, err := buildServer(cfg, nil)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("✓ Gateway started on %s\n", server.Addr())
	fmt.Printf("✓ Webhook at http://%s%s\n", server.Addr(), cfg.Gateway.WebhookPath)
	fmt.Printf("✓ Health endpoints available at http://%s/health and /ready\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case err := <-errCh:
		logger.ErrorCF("gateway", "Server error", map[string]any{"error": err.Error()})
		return fmt.Errorf("gateway server: %w", err)
	}

	fmt.Println("\nShutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		logger.WarnCF("gateway", "Shutdown incomplete", map[string]any{"error": err.Error()})
	}
	if err := shutdownTracing(stopCtx); err != nil {
		logger.WarnCF("telemetry", "Trace flush failed", map[string]any{"error": err.Error()})
	}
	fmt.Println("✓ Gateway stopped")

	return nil
}

// buildServer wires the relay for cfg. A non-nil creator replaces the Twilio
// REST client.
func buildServer(cfg *config.Config, creator channels.MessageCreator) (*httpgateway.Server, error) {
	client, err := directline.NewClient(directline.Config{
		Token:   cfg.DirectLine.Token,
		BaseURL: cfg.DirectLine.BaseURL,
		Timeout: cfg.DirectLine.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Direct Line client: %w", err)
	}

	twilioCfg := channels.TwilioConfig{
		AccountSID:       cfg.Twilio.AccountSID,
		AuthToken:        cfg.Twilio.AuthToken,
		From:             cfg.Twilio.From,
		AllowFrom:        cfg.Twilio.AllowFrom,
		MaxMessageLength: cfg.Twilio.MaxMessageLength,
	}
	var channel *channels.TwilioChannel
	if creator != nil {
		channel, err = channels.NewTwilioChannelWithCreator(twilioCfg, creator)
	} else {
		channel, err = channels.NewTwilioChannel(twilioCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating Twilio channel: %w", err)
	}

	r := relay.New(session.NewMemoryStore(), client, channel)

	logger.InfoCF("gateway", "Relay initialized", map[string]any{
		"directline": client.BaseURL(),
		"from":       channel.From(),
		"allow_list": len(cfg.Twilio.AllowFrom),
	})

	return httpgateway.New(httpgateway.Config{
		Host:        cfg.Gateway.Host,
		Port:        cfg.Gateway.Port,
		WebhookPath: cfg.Gateway.WebhookPath,
		CORSOrigins: cfg.Gateway.CORSOrigins,
	}, r, channel), nil
}
