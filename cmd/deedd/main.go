package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"deedvault/config"
	"deedvault/core"
	coreevents "deedvault/core/events"
	"deedvault/core/types"
	"deedvault/native/escrow"
	"deedvault/observability/logging"
	"deedvault/rpc"
	"deedvault/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	envEnv       = "DEEDVAULT_ENV"
	vaultPassEnv = "DEEDVAULT_VAULT_PASS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnv))
	logger := logging.Setup("deedd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	vaultKey, err := cfg.EnsureVaultKey(os.Getenv(vaultPassEnv))
	if err != nil {
		logger.Error("failed to initialise vault keystore", "error", err)
		os.Exit(1)
	}
	vault := vaultKey.PubKey().Address()

	roles, err := loadRoles(cfg)
	if err != nil {
		logger.Error("invalid role configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, vault.Raw(), roles)
	if err != nil {
		logger.Error("failed to start node", "error", err)
		os.Exit(1)
	}
	node.SetEmitter(&slogEmitter{logger: logger})

	logger.Info("node initialised",
		"vault", vault.String(),
		"rpc", cfg.RPCAddress,
	)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listener started", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

func loadRoles(cfg *config.Config) (escrow.Roles, error) {
	var roles escrow.Roles
	seller, err := config.RoleAddress("SellerAddress", cfg.SellerAddress)
	if err != nil {
		return roles, err
	}
	if seller == ([20]byte{}) {
		return roles, fmt.Errorf("config: SellerAddress is required")
	}
	buyer, err := config.RoleAddress("BuyerAddress", cfg.BuyerAddress)
	if err != nil {
		return roles, err
	}
	lender, err := config.RoleAddress("LenderAddress", cfg.LenderAddress)
	if err != nil {
		return roles, err
	}
	inspector, err := config.RoleAddress("InspectorAddress", cfg.InspectorAddress)
	if err != nil {
		return roles, err
	}
	roles.Seller = seller
	roles.Buyer = buyer
	roles.Lender = lender
	roles.Inspector = inspector
	return roles, nil
}

// slogEmitter forwards engine events to the structured log.
type slogEmitter struct {
	logger *slog.Logger
}

type payloadEvent interface {
	Event() *types.Event
}

func (e *slogEmitter) Emit(evt coreevents.Event) {
	args := []any{"type", evt.EventType()}
	if carrier, ok := evt.(payloadEvent); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				args = append(args, k, v)
			}
		}
	}
	e.logger.Info("event", args...)
}
