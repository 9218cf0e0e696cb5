package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"fundingvault/config"
	"fundingvault/core/events"
	"fundingvault/gateway"
	"fundingvault/native/amounts"
	"fundingvault/native/bank"
	"fundingvault/native/funding"
	"fundingvault/native/oracle"
	"fundingvault/native/payqueue"
	"fundingvault/observability"
	"fundingvault/observability/logging"
	"fundingvault/storage"
)

const authTokenEnv = "FUNDING_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./funding.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FUNDING_ENV"))
	logger := logging.Setup("fundingd", env)

	if err := run(*configFile, logger); err != nil {
		logger.Error("fundingd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string, logger *slog.Logger) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st, err := buildStack(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("fundingd ready",
		"backend", cfg.Backend,
		"chainId", cfg.ChainID,
		"issuedDecimals", cfg.IssuedToken.Decimals,
		"collateralDecimals", cfg.CollateralToken.Decimals,
	)
	if err := st.server.Start(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("fundingd stopped")
	return nil
}

// stack bundles the wired components so tests can drive them directly.
type stack struct {
	engine *funding.Engine
	queue  *payqueue.Queue
	ledger *bank.Bank
	prices *oracle.Manual
	server *gateway.Server
}

func buildStack(cfg *config.Config, db storage.Database, logger *slog.Logger) (*stack, error) {
	engineAddr, err := resolveAddress(cfg.EngineAddress, 0xE0)
	if err != nil {
		return nil, fmt.Errorf("EngineAddress: %w", err)
	}
	queueAddr, err := resolveAddress(cfg.QueueAddress, 0xAB)
	if err != nil {
		return nil, fmt.Errorf("QueueAddress: %w", err)
	}
	issuedToken, err := resolveAddress(cfg.IssuedToken.Address, 0x10)
	if err != nil {
		return nil, fmt.Errorf("IssuedToken.Address: %w", err)
	}
	collateralToken, err := resolveAddress(cfg.CollateralToken.Address, 0x11)
	if err != nil {
		return nil, fmt.Errorf("CollateralToken.Address: %w", err)
	}

	ledger := bank.New()
	orderLedger := payqueue.NewLedger(storage.NewKVStore(db))

	metricsEmitter := observability.NewMetricsEmitter(observability.Funding())
	emitter := events.MultiEmitter{metricsEmitter}

	queue := payqueue.NewQueue(queueAddr)
	queue.SetTokenPort(ledger)
	queue.SetEmitter(emitter)

	processor := payqueue.NewProcessor(queue)
	processor.SetTokenPort(ledger)
	processor.SetEmitter(emitter)
	processor.SetLedger(orderLedger)

	engine := funding.NewEngine(engineAddr)
	engine.SetQueue(queue)
	engine.SetProcessor(processor)
	engine.SetTokenPort(ledger)
	engine.SetSupplyPort(ledger)
	engine.SetEmitter(emitter)
	engine.SetChainID(cfg.ChainID)
	engine.SetAutoSettle(!cfg.DisableAutoSettle)
	engine.SetIssuedToken(issuedToken, cfg.IssuedToken.Decimals)
	engine.SetCollateralToken(collateralToken, cfg.CollateralToken.Decimals)

	// The queue settles by drawing on the reserve with TransferFrom, so the
	// engine grants it a standing allowance at wiring time.
	if err := ledger.Approve(collateralToken, engineAddr, queueAddr, maxAllowance()); err != nil {
		return nil, fmt.Errorf("queue allowance: %w", err)
	}

	if err := seedGenesis(cfg, ledger, issuedToken, collateralToken); err != nil {
		return nil, err
	}

	prices := oracle.NewManual()
	if err := engine.SetOracle(engineAddr, prices); err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}

	registry := funding.NewStaticRegistry()
	if err := configureFees(cfg, engine, registry); err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	engine.SetFeeRegistry(registry)

	authToken := strings.TrimSpace(os.Getenv(authTokenEnv))
	if authToken == "" {
		authToken = cfg.AuthToken
	}
	if authToken == "" {
		logger.Warn("no RPC auth token configured, write methods are open")
	}

	server := gateway.NewServer(engine, queue, prices, logger, authToken)
	return &stack{engine: engine, queue: queue, ledger: ledger, prices: prices, server: server}, nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "funding.db"))
	default:
		return storage.NewMemDB(), nil
	}
}

func maxAllowance() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	return limit.Sub(limit, big.NewInt(1))
}

// seedGenesis mints the configured startup balances.
func seedGenesis(cfg *config.Config, ledger *bank.Bank, issuedToken, collateralToken [20]byte) error {
	for i, account := range cfg.Genesis {
		addr, err := config.ParseAddress(account.Address)
		if err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		amount, err := amounts.Parse(account.Amount)
		if err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		token := issuedToken
		if strings.EqualFold(strings.TrimSpace(account.Token), "collateral") {
			token = collateralToken
		}
		if err := ledger.Mint(token, addr, amount); err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
	}
	return nil
}

func resolveAddress(value string, fallback byte) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		var out [20]byte
		out[19] = fallback
		return out, nil
	}
	return config.ParseAddress(value)
}

func configureFees(cfg *config.Config, engine *funding.Engine, registry *funding.StaticRegistry) error {
	if cfg.Fees.ProtocolBuyBps > 0 {
		treasury, err := config.ParseAddress(cfg.Fees.ProtocolBuyTreasury)
		if err != nil {
			return err
		}
		if err := registry.SetBuyFee(treasury, cfg.Fees.ProtocolBuyBps); err != nil {
			return err
		}
	}
	if cfg.Fees.ProtocolSellBps > 0 {
		treasury, err := config.ParseAddress(cfg.Fees.ProtocolSellTreasury)
		if err != nil {
			return err
		}
		if err := registry.SetSellFee(treasury, cfg.Fees.ProtocolSellBps); err != nil {
			return err
		}
	}
	if err := engine.SetProjectBuyFee(engine.Self(), cfg.Fees.ProjectBuyBps); err != nil {
		return err
	}
	if err := engine.SetProjectSellFee(engine.Self(), cfg.Fees.ProjectSellBps); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Fees.ProjectTreasury) != "" {
		treasury, err := config.ParseAddress(cfg.Fees.ProjectTreasury)
		if err != nil {
			return err
		}
		if err := engine.SetProjectTreasury(engine.Self(), treasury); err != nil {
			return err
		}
	}
	return nil
}
