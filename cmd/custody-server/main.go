package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/custodial-wallet-backend/api/folderhandler"
	"github.com/ruteri/custodial-wallet-backend/api/rewardhandler"
	"github.com/ruteri/custodial-wallet-backend/api/wallethandler"
	"github.com/ruteri/custodial-wallet-backend/assets"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/cmd/flags"
	"github.com/ruteri/custodial-wallet-backend/common"
	"github.com/ruteri/custodial-wallet-backend/httpserver"
	"github.com/ruteri/custodial-wallet-backend/rewards"
	"github.com/ruteri/custodial-wallet-backend/storage"
	"github.com/ruteri/custodial-wallet-backend/wallet"
	"github.com/urfave/cli/v2"
)

var (
	flagJWTSecret = &cli.StringFlag{
		Name:     "jwt-secret",
		Required: true,
		Usage:    "HMAC secret shared with the identity provider, at least 32 bytes",
		EnvVars:  []string{"CUSTODY_JWT_SECRET"},
	}
	flagJWTIssuer = &cli.StringFlag{
		Name:    "jwt-issuer",
		Usage:   "required token issuer",
		EnvVars: []string{"CUSTODY_JWT_ISSUER"},
	}
	flagJWTAudience = &cli.StringFlag{
		Name:    "jwt-audience",
		Usage:   "required token audience",
		EnvVars: []string{"CUSTODY_JWT_AUDIENCE"},
	}
	flagRewardTokenID = &cli.StringFlag{
		Name:    "reward-token-id",
		Usage:   "utility token paid out as rewards. Reward routes are disabled when empty",
		EnvVars: []string{"CUSTODY_REWARD_TOKEN_ID"},
	}
	flagRewardDecimals = &cli.UintFlag{
		Name:    "reward-token-decimals",
		Value:   2,
		Usage:   "decimals of the reward token",
		EnvVars: []string{"CUSTODY_REWARD_TOKEN_DECIMALS"},
	}
	flagRewardSchedule = &cli.StringFlag{
		Name:    "reward-schedule-file",
		Usage:   "YAML file overriding the reward rates",
		EnvVars: []string{"CUSTODY_REWARD_SCHEDULE_FILE"},
	}
	flagInitialBalance = &cli.Int64Flag{
		Name:    "wallet-initial-balance",
		Value:   wallet.DefaultConfig().InitialBalance,
		Usage:   "tinybars every new account is funded with",
		EnvVars: []string{"CUSTODY_WALLET_INITIAL_BALANCE"},
	}
	flagStaleAfter = &cli.DurationFlag{
		Name:  "wallet-stale-after",
		Value: wallet.DefaultConfig().StaleAfter,
		Usage: "age after which an unresolved wallet creation is failed; must exceed the ledger's 120s transaction validity",
	}
	flagCollectionName = &cli.StringFlag{
		Name:  "folder-collection-name",
		Value: assets.DefaultConfig().CollectionName,
		Usage: "name of the per-user folder NFT collections",
	}
)

func main() {
	serverFlags := append([]cli.Flag{}, flags.CommonFlags...)
	serverFlags = append(serverFlags, flags.ServerFlags...)
	serverFlags = append(serverFlags, flags.BackendFlags...)
	serverFlags = append(serverFlags,
		flagJWTSecret,
		flagJWTIssuer,
		flagJWTAudience,
		flagRewardTokenID,
		flagRewardDecimals,
		flagRewardSchedule,
		flagInitialBalance,
		flagStaleAfter,
		flagCollectionName,
	)

	app := &cli.App{
		Name:  "custody-server",
		Usage: "Serve the custodial wallet API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			shutdownTracing, err := common.SetupTracing(ctx, common.TracingOpts{
				Service:     cCtx.String(flags.LogServiceFlag.Name),
				Environment: cCtx.String(flags.EnvironmentFlag.Name),
				Endpoint:    cCtx.String(flags.OTLPEndpointFlag.Name),
				Insecure:    cCtx.Bool(flags.OTLPInsecureFlag.Name),
			})
			if err != nil {
				logger.Error("Failed to set up tracing", "err", err)
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logger.Warn("Failed to flush traces", "err", err)
				}
			}()

			verifier, err := auth.NewJWTVerifier(auth.Config{
				HMACSecret: cCtx.String(flagJWTSecret.Name),
				Issuer:     cCtx.String(flagJWTIssuer.Name),
				Audience:   cCtx.String(flagJWTAudience.Name),
			})
			if err != nil {
				logger.Error("Invalid token configuration", "err", err)
				return err
			}

			vault, err := flags.OpenVault(cCtx, logger)
			if err != nil {
				logger.Error("Failed to configure credential vault", "err", err)
				return err
			}

			factory := storage.NewStorageBackendFactory(logger)
			registry, err := flags.OpenRegistry(cCtx, factory)
			if err != nil {
				logger.Error("Failed to open registry", "err", err)
				return err
			}
			defer registry.Close()

			blobs, err := factory.CreateMultiBackend(cCtx.StringSlice(flags.MetadataURIsFlag.Name))
			if err != nil {
				logger.Error("Failed to open metadata stores", "err", err)
				return err
			}

			sessions, orchestrator := flags.OpenLedger(cCtx, registry.Keys, vault, logger)
			defer sessions.Close()

			keyRef := cCtx.String(flags.KMSKeyRefFlag.Name)
			provisioner := wallet.NewProvisioner(registry.Wallets, registry.Keys, vault, orchestrator, wallet.Config{
				InitialBalance: cCtx.Int64(flagInitialBalance.Name),
				KeyRef:         keyRef,
				StaleAfter:     cCtx.Duration(flagStaleAfter.Name),
			}, logger)
			folders := assets.NewService(registry.Wallets, registry.Keys, registry.Assets, blobs, vault, orchestrator, assets.Config{
				CollectionName: cCtx.String(flagCollectionName.Name),
			}, logger)

			handlers := []httpserver.RouteRegistrar{
				wallethandler.NewHandler(provisioner, logger),
				folderhandler.NewHandler(folders, logger),
			}

			if tokenID := cCtx.String(flagRewardTokenID.Name); tokenID != "" {
				var schedule rewards.Schedule
				if path := cCtx.String(flagRewardSchedule.Name); path != "" {
					schedule, err = rewards.LoadSchedule(path)
					if err != nil {
						logger.Error("Failed to load reward schedule", "err", err, "path", path)
						return err
					}
				}
				engine, err := rewards.NewEngine(registry.Wallets, registry.Keys, registry.Rewards, vault, orchestrator, rewards.Config{
					TokenID:  tokenID,
					Decimals: cCtx.Uint(flagRewardDecimals.Name),
					Schedule: schedule,
				}, logger)
				if err != nil {
					logger.Error("Invalid reward configuration", "err", err)
					return err
				}
				handlers = append(handlers, rewardhandler.NewHandler(engine, logger))
				logger.Info("Rewards enabled", "tokenId", tokenID, "events", engine.Schedule().Events())
			} else {
				logger.Warn("No reward token configured, reward routes disabled")
			}

			// Fail fast on a missing or undecryptable operator credential.
			if _, err := sessions.Session(ctx); err != nil {
				logger.Error("Operator session unavailable", "err", err)
				return err
			}

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.Routes{
				Verifier: verifier,
				Handlers: handlers,
				Ready: func(ctx context.Context) error {
					if !blobs.Available(ctx) {
						return errors.New("metadata store unavailable")
					}
					_, err := sessions.Session(ctx)
					return err
				},
			})
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
