// Package donation binds the confidential donation contract. Amounts and
// totals are ciphertext handles; reading them back goes through a cached
// decryption authorization.
package donation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/fhevm-client/decryption"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/storage"
)

// DonationABI covers the subset of the contract used by Client. Encrypted
// values travel as bytes32 handles.
const DonationABI = `[
	{"type":"function","name":"createProject","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"donate","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"uint256"},{"name":"encryptedAmount","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"getProjectTotal","stateMutability":"view","inputs":[{"name":"projectId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getDonationOf","stateMutability":"view","inputs":[{"name":"projectId","type":"uint256"},{"name":"donor","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getProjectInfo","stateMutability":"view","inputs":[{"name":"projectId","type":"uint256"}],"outputs":[{"name":"name","type":"string"},{"name":"owner","type":"address"}]},
	{"type":"event","name":"ProjectCreated","anonymous":false,"inputs":[{"name":"projectId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"name","type":"string","indexed":false}]}
]`

var (
	ErrNoTransactOpts    = errors.New("no authorized transactor available")
	ErrNotDeployed       = errors.New("donation contract is not deployed on this chain")
	ErrInvalidProject    = errors.New("invalid project")
	ErrInvalidAmount     = errors.New("donation amount must be positive")
	ErrTransactionFailed = errors.New("transaction reverted")
	ErrNotAuthorized     = errors.New("no decryption authorization")
)

// ProjectInfo is the public part of a project.
type ProjectInfo struct {
	Name  string
	Owner common.Address
}

// ProjectCreated is the decoded creation event.
type ProjectCreated struct {
	ProjectId *big.Int
	Owner     common.Address
	Name      string
}

// Client talks to one deployment of the donation contract.
type Client struct {
	contract *bind.BoundContract
	abi      abi.ABI
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts

	authorizations *decryption.Cache
	log            *slog.Logger
}

// NewClient binds the contract at address. Authorizations are kept in memory
// unless WithAuthorizations is used.
func NewClient(address common.Address, client bind.ContractBackend, backend bind.DeployBackend, log *slog.Logger) (*Client, error) {
	if address == (common.Address{}) {
		return nil, ErrNotDeployed
	}

	parsed, err := abi.JSON(strings.NewReader(DonationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse donation ABI: %w", err)
	}

	return &Client{
		contract:       bind.NewBoundContract(address, parsed, client, client, client),
		abi:            parsed,
		backend:        backend,
		address:        address,
		authorizations: decryption.NewCache(storage.NewMemoryBackend(), log),
		log:            log,
	}, nil
}

// SetTransactOpts sets the transaction signing options used for writes.
func (c *Client) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// WithAuthorizations replaces the decryption authorization cache.
func (c *Client) WithAuthorizations(cache *decryption.Cache) *Client {
	c.authorizations = cache
	return c
}

func (c *Client) Address() common.Address {
	return c.address
}

// CreateProject submits a new project and waits for it to be mined. The id is
// nil when the receipt carries no creation event.
func (c *Client) CreateProject(ctx context.Context, name string) (*big.Int, *types.Transaction, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("%w: empty name", ErrInvalidProject)
	}

	tx, receipt, err := c.transact(ctx, "createProject", name)
	if err != nil {
		return nil, tx, err
	}

	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) == 0 || l.Topics[0] != c.abi.Events["ProjectCreated"].ID {
			continue
		}
		var ev ProjectCreated
		if err := c.contract.UnpackLog(&ev, "ProjectCreated", *l); err != nil {
			c.log.Warn("Could not decode ProjectCreated", "err", err, slog.String("tx", tx.Hash().Hex()))
			continue
		}
		c.log.Info("Project created", slog.String("id", ev.ProjectId.String()), slog.String("tx", tx.Hash().Hex()))
		return ev.ProjectId, tx, nil
	}
	c.log.Warn("Project created without creation event", slog.String("tx", tx.Hash().Hex()))
	return nil, tx, nil
}

// Donate encrypts amount for the configured transactor and submits it.
func (c *Client) Donate(ctx context.Context, instance interfaces.Instance, projectID *big.Int, amount uint64) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}
	if err := validProject(projectID); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	enc, err := instance.CreateEncryptedInput(c.address, c.auth.From).Add64(amount).Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt donation: %w", err)
	}

	tx, _, err := c.transact(ctx, "donate", projectID, [32]byte(enc.Handles[0]), enc.InputProof)
	if err != nil {
		return tx, err
	}
	c.log.Info("Donation submitted", slog.String("project", projectID.String()), slog.String("tx", tx.Hash().Hex()))
	return tx, nil
}

// ProjectTotal returns the handle of the encrypted total of a project.
func (c *Client) ProjectTotal(ctx context.Context, projectID *big.Int) (common.Hash, error) {
	if err := validProject(projectID); err != nil {
		return common.Hash{}, err
	}
	return c.callHandle(ctx, "getProjectTotal", projectID)
}

// DonationOf returns the handle of the encrypted sum donor gave to a project.
func (c *Client) DonationOf(ctx context.Context, projectID *big.Int, donor common.Address) (common.Hash, error) {
	if err := validProject(projectID); err != nil {
		return common.Hash{}, err
	}
	return c.callHandle(ctx, "getDonationOf", projectID, donor)
}

func (c *Client) ProjectInfo(ctx context.Context, projectID *big.Int) (*ProjectInfo, error) {
	if err := validProject(projectID); err != nil {
		return nil, err
	}

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getProjectInfo", projectID); err != nil {
		return nil, err
	}
	return &ProjectInfo{
		Name:  *abi.ConvertType(out[0], new(string)).(*string),
		Owner: *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
	}, nil
}

// Decrypt reveals handle to the signer's account. The zero handle is an
// uninitialized value and decrypts to zero without asking for a signature.
func (c *Client) Decrypt(ctx context.Context, instance interfaces.Instance, signer interfaces.TypedDataSigner, handle common.Hash) (*big.Int, error) {
	if handle == (common.Hash{}) {
		return new(big.Int), nil
	}

	auth := c.authorizations.LoadOrSign(ctx, instance, []common.Address{c.address}, signer, nil)
	if auth == nil {
		return nil, ErrNotAuthorized
	}

	values, err := instance.UserDecrypt(ctx, []interfaces.HandleContractPair{{Handle: handle, ContractAddress: c.address}}, auth.UserDecryptRequest())
	if err != nil {
		return nil, err
	}
	v, ok := values[handle]
	if !ok {
		return nil, fmt.Errorf("no value returned for handle %s", handle.Hex())
	}
	return v, nil
}

func (c *Client) callHandle(ctx context.Context, method string, params ...interface{}) (common.Hash, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

func (c *Client) transact(ctx context.Context, method string, params ...interface{}) (*types.Transaction, *types.Receipt, error) {
	if c.auth == nil {
		return nil, nil, ErrNoTransactOpts
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, nil, err
	}

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return tx, nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx, receipt, fmt.Errorf("%w: %s %s", ErrTransactionFailed, method, tx.Hash().Hex())
	}
	return tx, receipt, nil
}

func validProject(id *big.Int) error {
	if id == nil || id.Sign() <= 0 {
		return ErrInvalidProject
	}
	return nil
}
