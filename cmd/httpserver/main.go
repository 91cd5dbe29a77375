package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/cmd/flags"
	"github.com/ruteri/fhevm-client/httpserver"
	"github.com/ruteri/fhevm-client/lifecycle"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := flags.PreloadEnvFile(os.Args); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "fhevm-server",
		Usage: "Serve encryption and decryption for an fhEVM network",
		Flags: append(append(append(flags.NetworkFlags, flags.AccountFlags...), flags.ServerFlags...), flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			var contracts []common.Address
			if cCtx.String(flags.ContractFlag.Name) != "" {
				contract, err := flags.ContractAddress(cCtx)
				if err != nil {
					return err
				}
				contracts = append(contracts, contract)
			}

			stack, err := flags.BuildStack(cCtx, logger, nil)
			if err != nil {
				logger.Error("Failed to configure instance stack", "err", err)
				return err
			}

			account, _, err := flags.Account(cCtx.Context, cCtx)
			if err != nil {
				logger.Error("Failed to load account", "err", err)
				return err
			}
			address, err := account.Address(cCtx.Context)
			if err != nil {
				logger.Error("Failed to resolve account address", "err", err)
				return err
			}
			logger.Info("Using account", "address", address.Hex())

			manager := lifecycle.NewManager(stack.Factory, logger)
			defer manager.Close()

			handler := httpserver.NewHandler(manager, stack.Authorizations, account, logger)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, contracts), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			m := server.Metrics()
			stack.Loader.WithMetrics(m)
			stack.Factory.WithMetrics(m)
			stack.Authorizations.WithMetrics(m)
			manager.WithMetrics(m)

			logger.Info("Building encryption instance", "network", stack.Network.String())
			manager.SetMockChains(stack.MockChains)
			manager.SetNetwork(stack.Network)

			go func() {
				instance, err := manager.WaitReady(cCtx.Context)
				if err != nil {
					logger.Warn("Encryption instance not ready", "err", err)
					return
				}
				if pk := instance.GetPublicKey(); pk != nil {
					logger.Info("Encryption instance ready", "publicKeyId", pk.ID)
				}
			}()

			server.RunInBackground()

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

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
