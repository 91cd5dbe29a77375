package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/fhevm-client/cmd/flags"
	"github.com/ruteri/fhevm-client/donation"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/urfave/cli/v2"
)

var flagHandle = &cli.StringFlag{
	Name:     "handle",
	Usage:    "bytes32 ciphertext handle",
	Required: true,
}

var flagProject = &cli.Int64Flag{
	Name:     "project",
	Usage:    "donation project id",
	Required: true,
}

var flagName = &cli.StringFlag{
	Name:     "name",
	Usage:    "project name",
	Required: true,
}

var flagAmount = &cli.Uint64Flag{
	Name:     "amount",
	Usage:    "amount to donate",
	Required: true,
}

var flagReveal = &cli.BoolFlag{
	Name:  "decrypt",
	Usage: "decrypt the handle with the account's authorization",
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 2 * time.Minute,
	Usage: "timeout of the whole command",
}

func globalFlags() []cli.Flag {
	all := []cli.Flag{flagTimeout, flags.ContractFlag}
	all = append(all, flags.NetworkFlags...)
	all = append(all, flags.AccountFlags...)
	return append(all, flags.LogFlags...)
}

func main() {
	if err := flags.PreloadEnvFile(os.Args); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:           "fhevmctl",
		Usage:          "Inspect an fhEVM network and use the confidential donation contract",
		Flags:          globalFlags(),
		DefaultCommand: "resolve",
		Commands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "Classify the network as mock or production",
				Action: withTimeout(resolve),
			},
			{
				Name:   "instance",
				Usage:  "Build an encryption instance and print its public key",
				Action: withTimeout(instance),
			},
			{
				Name:   "authorize",
				Usage:  "Sign or reuse the decryption authorization for --contract",
				Action: withTimeout(authorize),
			},
			{
				Name:   "decrypt",
				Usage:  "Decrypt a handle of --contract",
				Flags:  []cli.Flag{flagHandle},
				Action: withTimeout(decrypt),
			},
			{
				Name:   "create-project",
				Usage:  "Create a donation project",
				Flags:  []cli.Flag{flagName},
				Action: withTimeout(createProject),
			},
			{
				Name:   "donate",
				Usage:  "Donate an encrypted amount to a project",
				Flags:  []cli.Flag{flagProject, flagAmount},
				Action: withTimeout(donate),
			},
			{
				Name:   "project-total",
				Usage:  "Print the encrypted total of a project",
				Flags:  []cli.Flag{flagProject, flagReveal},
				Action: withTimeout(projectTotal),
			},
			{
				Name:   "my-donation",
				Usage:  "Print the account's encrypted donation to a project",
				Flags:  []cli.Flag{flagProject, flagReveal},
				Action: withTimeout(myDonation),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type action func(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error

func withTimeout(a action) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
		defer cancel()
		return a(ctx, cCtx, flags.SetupLogger(cCtx))
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func resolve(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	stack, err := flags.BuildStack(cCtx, logger, nil)
	if err != nil {
		return err
	}
	res, err := stack.Resolver.Resolve(ctx, stack.Network, stack.MockChains)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func buildInstance(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*flags.Stack, interfaces.Instance, error) {
	stack, err := flags.BuildStack(cCtx, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	instance, err := stack.Factory.CreateInstance(ctx, stack.Params())
	if err != nil {
		return nil, nil, err
	}
	return stack, instance, nil
}

func instance(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	_, instance, err := buildInstance(ctx, cCtx, logger)
	if err != nil {
		return err
	}
	pk := instance.GetPublicKey()
	if pk == nil {
		return errors.New("instance has no public key")
	}
	return printJSON(map[string]interface{}{
		"publicKeyId":   pk.ID,
		"publicKeySize": len(pk.Data),
	})
}

func authorize(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	contract, err := flags.ContractAddress(cCtx)
	if err != nil {
		return err
	}
	stack, instance, err := buildInstance(ctx, cCtx, logger)
	if err != nil {
		return err
	}
	account, _, err := flags.Account(ctx, cCtx)
	if err != nil {
		return err
	}

	auth := stack.Authorizations.LoadOrSign(ctx, instance, []common.Address{contract}, account, nil)
	if auth == nil {
		return interfaces.ErrSignatureRejected
	}
	return printJSON(map[string]interface{}{
		"userAddress":       auth.UserAddress,
		"contractAddresses": auth.ContractAddresses,
		"publicKey":         auth.PublicKey,
		"startTimestamp":    auth.StartTimestamp,
		"durationDays":      auth.DurationDays,
		"expiresAt":         auth.ExpiresAt().UTC().Format(time.RFC3339),
	})
}

func decrypt(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	contract, err := flags.ContractAddress(cCtx)
	if err != nil {
		return err
	}
	stack, instance, err := buildInstance(ctx, cCtx, logger)
	if err != nil {
		return err
	}
	account, _, err := flags.Account(ctx, cCtx)
	if err != nil {
		return err
	}

	handle := common.HexToHash(cCtx.String(flagHandle.Name))
	auth := stack.Authorizations.LoadOrSign(ctx, instance, []common.Address{contract}, account, nil)
	if auth == nil {
		return interfaces.ErrSignatureRejected
	}
	values, err := instance.UserDecrypt(ctx, []interfaces.HandleContractPair{{Handle: handle, ContractAddress: contract}}, auth.UserDecryptRequest())
	if err != nil {
		return err
	}
	fmt.Println(values[handle])
	return nil
}

// donationSession is a donation client bound to the configured account.
type donationSession struct {
	stack   *flags.Stack
	client  *donation.Client
	account interfaces.TypedDataSigner
}

func newDonationSession(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, transact bool) (*donationSession, error) {
	contract, err := flags.ContractAddress(cCtx)
	if err != nil {
		return nil, err
	}
	stack, err := flags.BuildStack(cCtx, logger, nil)
	if err != nil {
		return nil, err
	}
	account, keySigner, err := flags.Account(ctx, cCtx)
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, cCtx.String(flags.RpcAddrFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not dial RPC: %w", err)
	}

	client, err := donation.NewClient(contract, eth, eth, logger)
	if err != nil {
		return nil, err
	}
	client.WithAuthorizations(stack.Authorizations)

	if transact {
		if keySigner == nil {
			return nil, fmt.Errorf("%w: sending transactions needs --private-key or --keystore", donation.ErrNoTransactOpts)
		}
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		auth, err := keySigner.TransactOpts(ctx, chainID.Uint64())
		if err != nil {
			return nil, err
		}
		client.SetTransactOpts(auth)
	}

	return &donationSession{stack: stack, client: client, account: account}, nil
}

func (s *donationSession) instance(ctx context.Context) (interfaces.Instance, error) {
	return s.stack.Factory.CreateInstance(ctx, s.stack.Params())
}

func (s *donationSession) printHandle(ctx context.Context, handle common.Hash, reveal bool) error {
	if !reveal {
		fmt.Println(handle.Hex())
		return nil
	}
	instance, err := s.instance(ctx)
	if err != nil {
		return err
	}
	v, err := s.client.Decrypt(ctx, instance, s.account, handle)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func createProject(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	s, err := newDonationSession(ctx, cCtx, logger, true)
	if err != nil {
		return err
	}
	id, tx, err := s.client.CreateProject(ctx, cCtx.String(flagName.Name))
	if err != nil {
		return err
	}
	logger.Info("Project created", "tx", tx.Hash().Hex())
	if id == nil {
		return errors.New("transaction emitted no ProjectCreated event")
	}
	fmt.Println(id)
	return nil
}

func donate(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	s, err := newDonationSession(ctx, cCtx, logger, true)
	if err != nil {
		return err
	}
	instance, err := s.instance(ctx)
	if err != nil {
		return err
	}
	tx, err := s.client.Donate(ctx, instance, big.NewInt(cCtx.Int64(flagProject.Name)), cCtx.Uint64(flagAmount.Name))
	if err != nil {
		return err
	}
	fmt.Println(tx.Hash().Hex())
	return nil
}

func projectTotal(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	s, err := newDonationSession(ctx, cCtx, logger, false)
	if err != nil {
		return err
	}
	handle, err := s.client.ProjectTotal(ctx, big.NewInt(cCtx.Int64(flagProject.Name)))
	if err != nil {
		return err
	}
	return s.printHandle(ctx, handle, cCtx.Bool(flagReveal.Name))
}

func myDonation(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) error {
	s, err := newDonationSession(ctx, cCtx, logger, false)
	if err != nil {
		return err
	}
	donor, err := s.account.Address(ctx)
	if err != nil {
		return err
	}
	handle, err := s.client.DonationOf(ctx, big.NewInt(cCtx.Int64(flagProject.Name)), donor)
	if err != nil {
		return err
	}
	return s.printHandle(ctx, handle, cCtx.Bool(flagReveal.Name))
}
