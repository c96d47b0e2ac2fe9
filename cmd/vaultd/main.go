package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainsafe/relicvault/pkg/app/api"
	"github.com/chainsafe/relicvault/pkg/app/httpserver"
	"github.com/chainsafe/relicvault/pkg/auth"
	"github.com/chainsafe/relicvault/pkg/bridge"
	"github.com/chainsafe/relicvault/pkg/config"
	"github.com/chainsafe/relicvault/pkg/custody"
	"github.com/chainsafe/relicvault/pkg/journal"
	"github.com/chainsafe/relicvault/pkg/pgutil"
	"github.com/chainsafe/relicvault/pkg/vault"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := config.LoadCatalog(cfg.Vault.AssetCatalog, cfg.Vault.AssetDecimals)
	if err != nil {
		return err
	}

	giftPrice, err := config.ParseAmount(cfg.Vault.GiftPrice, cfg.Vault.AssetDecimals)
	if err != nil {
		return err
	}

	// Asset settlement runs out of process. Until a settlement client is
	// attached, deposit-backed operations report the asset as unavailable.
	resolver := custody.ResolverFunc(func(common.Address) (custody.Asset, error) {
		return nil, custody.ErrAssetUnavailable
	})

	v := vault.New(vault.Config{
		Self:         common.HexToAddress(cfg.Vault.SelfAddress),
		Admin:        common.HexToAddress(cfg.Vault.AdminAddress),
		BaseSupply:   cfg.Vault.BaseSupply,
		GiftSupply:   cfg.Vault.GiftSupply,
		MintDeadline: cfg.Vault.Deadline(),
		GiftAsset:    common.HexToAddress(cfg.Vault.GiftAsset),
		GiftPrice:    giftPrice,
		GiftURI:      cfg.Vault.GiftURI,
		FusedURI:     cfg.Vault.FusedURI,
		FeeBps:       cfg.Vault.FeeBps,
	}, resolver, catalog, logger)

	var jrnl bridge.Journal
	var store *journal.Store
	if cfg.Database.Enabled() {
		db, err := pgutil.Connect(cfg.Database.DSN())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		store = journal.NewStore(db)
		if err := store.Init(ctx); err != nil {
			return err
		}
		jrnl = store
		logger.Info("Bridge journal enabled",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))
	} else {
		logger.Warn("Bridge journal disabled, transfers will not be persisted")
	}

	endpoint := bridge.New(
		cfg.Bridge.LedgerID,
		common.HexToAddress(cfg.Vault.SelfAddress),
		v, &loggingTransport{logger: logger}, nil, jrnl, logger,
	)
	if store != nil {
		nonce, err := store.MaxOutboundNonce(ctx)
		if err != nil {
			return err
		}
		endpoint.ResumeFrom(nonce)
	}

	validator := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	handlers := api.NewHandlers(v, endpoint,
		common.HexToAddress(cfg.Vault.AdminAddress), cfg.Vault.AssetDecimals, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	handlers.RegisterRoutes(r, validator)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting vaultd",
		zap.String("addr", srv.Addr),
		zap.Uint32("ledger_id", cfg.Bridge.LedgerID))
	return httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout)
}

// loggingTransport stands in for the cross-ledger message transport. Outbound
// messages are logged for an external relayer to pick up; compose
// acknowledgments are logged and dropped.
type loggingTransport struct {
	logger *zap.Logger
}

func (t *loggingTransport) Send(_ context.Context, dst uint32, payload []byte) error {
	t.logger.Info("Outbound bridge message ready",
		zap.Uint32("destination", dst),
		zap.String("payload", hexutil.Encode(payload)))
	return nil
}

func (t *loggingTransport) Compose(_ context.Context, to common.Address, guid common.Hash, payload []byte) error {
	t.logger.Info("Compose acknowledgment",
		zap.String("to", to.Hex()),
		zap.String("guid", guid.Hex()),
		zap.Int("payload_bytes", len(payload)))
	return nil
}
