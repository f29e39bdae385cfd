package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chaintix/config"
	"chaintix/internal/gate"
	"chaintix/internal/handlers"
	"chaintix/internal/ledger"
	"chaintix/internal/ledger/gateway"
	"chaintix/internal/services"
	"chaintix/monitoring"
	"chaintix/utils"

	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"github.com/pocketbase/pocketbase"

	"chaintix/internal/clock"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	// Pick the ledger backend
	backend, err := newLedgerBackend(ctx, cfg, redisClient)
	if err != nil {
		return err
	}

	breaker := utils.NewCircuitBreaker("ledger")
	led := ledger.NewGuarded(backend, breaker, monitor)

	// Initialize services
	clk := clock.NewSystem()
	issuanceService := services.NewIssuanceService(led, clk, pn, monitor)
	verificationService := services.NewVerificationService(led, clk, pn, monitor)
	eventService := services.NewEventService(led, cfg.ListingFee)

	// Initialize handlers
	purchaseHandler := handlers.NewPurchaseHandler(app, issuanceService)
	verifyHandler := handlers.NewVerifyHandler(app, verificationService)
	eventHandler := handlers.NewEventHandler(app, eventService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Venue-side scan server
	gateServer := gate.NewServer(verificationService, redisClient)
	go func() {
		if err := gateServer.Start(ctx, ":"+cfg.GatePort); err != nil {
			slog.Error("gate server stopped", "error", err)
		}
	}()

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncActiveEventsToRedis(app, redisClient)

		// Purchase endpoints
		e.Router.POST("/api/v1/purchase", purchaseHandler.Purchase)

		// Verification endpoints
		e.Router.POST("/api/v1/verify", verifyHandler.Verify)
		e.Router.POST("/api/v1/verify/staff", verifyHandler.StaffVerify)
		e.Router.POST("/api/v1/admit", verifyHandler.Admit)

		// Event endpoints
		e.Router.POST("/api/v1/events", eventHandler.CreateEvent)
		e.Router.GET("/api/v1/events/{id}", eventHandler.GetEvent)
		e.Router.POST("/api/v1/events/tiers", eventHandler.AddTier)
		e.Router.POST("/api/v1/events/deactivate", eventHandler.DeactivateEvent)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupReceiptHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newLedgerBackend builds the configured ledger. The redis backend is
// the default; memory is for development, gateway for deployments that
// put an HTTP facade in front of the chain node.
func newLedgerBackend(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case "memory":
		return ledger.NewMemory(), nil
	case "gateway":
		client, err := gateway.New(ctx, &cfg.Gateway)
		if err != nil {
			return nil, err
		}
		if cfg.Gateway.PNSubKey != "" {
			go watchGatewayMints(ctx, cfg)
		}
		return client, nil
	case "redis":
		return ledger.NewRedis(redisClient, cfg.LedgerTimeout), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// watchGatewayMints subscribes to the gateway's mint feed so mints
// executed outside this process still show up in the logs.
func watchGatewayMints(ctx context.Context, cfg *config.Config) {
	watcher, err := gateway.NewWatcher(ctx, &cfg.Gateway)
	if err != nil {
		slog.Error("gateway watcher failed to start", "error", err)
		return
	}

	notices := make(chan *gateway.MintNotice, 1)
	watcher.SetNoticeChannel(notices)

	for {
		select {
		case n := <-notices:
			slog.Info("mint observed on ledger", "ticket_id", n.TicketID, "event_id", n.EventID, "buyer", n.Buyer)
		case <-ctx.Done():
			return
		}
	}
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics server listening", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}

// syncActiveEventsToRedis seeds the active_events set the metrics
// gauge reads from. Receipts are the only off-chain record of which
// events have seen traffic; the hooks keep the set current afterwards.
func syncActiveEventsToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT DISTINCT event_id FROM receipts",
	).All(&records); err != nil {
		log.Printf("Error fetching events from receipts: %v", err)
		return
	}

	redisClient.Del(ctx, "active_events")

	if len(records) > 0 {
		var eventIDs []interface{}
		for _, record := range records {
			if id := record["event_id"].String; id != "" {
				eventIDs = append(eventIDs, id)
			}
		}

		if len(eventIDs) > 0 {
			redisClient.SAdd(ctx, "active_events", eventIDs...)
			log.Printf("Synced %d events to Redis", len(eventIDs))
		}
	}
}

func setupReceiptHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	// Fires after a receipt record is journaled by the purchase path.
	app.OnRecordAfterCreateSuccess("receipts").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		eventID := e.Record.GetString("event_id")
		if eventID == "" {
			return e.Next()
		}

		if err := redisClient.SAdd(ctx, "active_events", eventID).Err(); err != nil {
			slog.Error("Failed to track event in Redis",
				"eventID", eventID,
				"error", err,
			)
			// Redis sync failures never fail the journal write.
			return e.Next()
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
