// Package ethereum implements the contract gateway over a JSON-RPC node.
// Reads go through eth_call, writes through eth_sendTransaction against the
// node's own account management, matching how the original web client talks
// to its node. Wallet and key UX are out of scope here.
package ethereum

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	_ "embed"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"taxicoin/chain"
	"taxicoin/config"
	"taxicoin/pkg/ledger"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
)

var (
	//go:embed taxicoin_abi.json
	abiJSON     []byte
	contractABI abi.ABI
)

func init() {
	var err error
	contractABI, err = abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
}

const (
	DriverDepositMethod         = "driverDeposit"
	RiderDepositMethod          = "riderDeposit"
	DriversMethod               = "drivers"
	RidersMethod                = "riders"
	DllDriverIndexMethod        = "dllDriverIndex"
	GetUserTypeMethod           = "getUserType"
	DriverAdvertiseMethod       = "driverAdvertise"
	DriverRevokeAdvertMethod    = "driverRevokeAdvert"
	RiderCreateJourneyMethod    = "riderCreateJourney"
	DriverAcceptJourneyMethod   = "driverAcceptJourney"
	CompleteJourneyMethod       = "completeJourney"
	ProposeFareAlterationMethod = "driverProposeFareAlteration"
	ConfirmFareAlterationMethod = "riderConfirmFareAlteration"
)

const receiptPollInterval = 500 * time.Millisecond

type Gateway struct {
	rpc      *rpc.Client
	contract common.Address
	account  common.Address // zero when the node's first account is used
	gasLimit uint64
	log      logger.ILogger
}

func New(cfg config.Config, log logger.ILogger) (chain.IContractGateway, error) {
	if cfg.EthURL == "" {
		return nil, chain.ErrNoProvider
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("ethereum: invalid contract address %q", cfg.ContractAddress)
	}

	client, err := rpc.Dial(cfg.EthURL)
	if err != nil {
		log.Error("failed to dial settlement chain", logger.Error(err))
		return nil, err
	}

	g := &Gateway{
		rpc:      client,
		contract: common.HexToAddress(cfg.ContractAddress),
		gasLimit: cfg.GasLimit,
		log:      log,
	}
	if cfg.EthAccount != "" {
		if !common.IsHexAddress(cfg.EthAccount) {
			return nil, fmt.Errorf("ethereum: invalid account address %q", cfg.EthAccount)
		}
		g.account = common.HexToAddress(cfg.EthAccount)
	}

	log.Info("settlement chain connected", logger.String("contract", g.contract.Hex()))
	return g, nil
}

func (g *Gateway) Close() {
	g.rpc.Close()
}

// ------------ //
// Write calls  //
// ------------ //

func (g *Gateway) Advertise(ctx context.Context, lat, lon string, pubKey string) (*chain.Receipt, error) {
	required, err := g.DriverDeposit(ctx)
	if err != nil {
		return nil, err
	}
	account, err := g.Account(ctx)
	if err != nil {
		return nil, err
	}
	driver, err := g.Driver(ctx, account)
	if err != nil {
		return nil, err
	}

	outstanding := ledger.OutstandingDeposit(required, driver.Deposit)
	return g.transact(ctx, DriverAdvertiseMethod, outstanding, lat, lon, pubKey)
}

func (g *Gateway) RevokeAdvert(ctx context.Context) (*chain.Receipt, error) {
	return g.transact(ctx, DriverRevokeAdvertMethod, nil)
}

func (g *Gateway) CreateJourney(ctx context.Context, driver common.Address, fare *big.Int) (*chain.Receipt, error) {
	deposit, err := g.RiderDeposit(ctx)
	if err != nil {
		return nil, err
	}
	return g.transact(ctx, RiderCreateJourneyMethod, ledger.TotalToEscrow(deposit, fare), driver)
}

func (g *Gateway) AcceptJourney(ctx context.Context, rider common.Address) (*chain.Receipt, error) {
	return g.transact(ctx, DriverAcceptJourneyMethod, nil, rider)
}

func (g *Gateway) CompleteJourney(ctx context.Context, rating uint8) (*chain.Receipt, error) {
	return g.transact(ctx, CompleteJourneyMethod, nil, rating)
}

func (g *Gateway) ProposeFareAlteration(ctx context.Context, newFare *big.Int) (*chain.Receipt, error) {
	return g.transact(ctx, ProposeFareAlterationMethod, nil, newFare)
}

func (g *Gateway) ConfirmFareAlteration(ctx context.Context, newFare *big.Int) (*chain.Receipt, error) {
	journey, err := g.CurrentJourney(ctx)
	if err != nil {
		return nil, err
	}
	if journey == nil {
		return nil, &chain.SettlementError{Op: ConfirmFareAlterationMethod, Err: fmt.Errorf("no journey in progress")}
	}
	delta := ledger.FareDelta(newFare, journey.Rider.Fare)
	return g.transact(ctx, ConfirmFareAlterationMethod, delta, newFare)
}

// ------------ //
// Read calls   //
// ------------ //

func (g *Gateway) ListDrivers(ctx context.Context) ([]*models.Driver, error) {
	drivers := []*models.Driver{}

	current, err := g.nextDriver(ctx, chain.ZeroAddress)
	if err != nil {
		return nil, err
	}
	for current != chain.ZeroAddress {
		driver, err := g.Driver(ctx, current)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)

		current, err = g.nextDriver(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	return drivers, nil
}

func (g *Gateway) nextDriver(ctx context.Context, after common.Address) (common.Address, error) {
	out, err := g.call(ctx, DllDriverIndexMethod, after, true)
	if err != nil {
		return chain.ZeroAddress, err
	}
	next, ok := out[0].(common.Address)
	if !ok {
		return chain.ZeroAddress, fmt.Errorf("ethereum: unexpected dllDriverIndex result %T", out[0])
	}
	return next, nil
}

func (g *Gateway) Driver(ctx context.Context, addr common.Address) (*models.Driver, error) {
	out, err := g.call(ctx, DriversMethod, addr)
	if err != nil {
		return nil, err
	}
	return driverFromTuple(out)
}

func (g *Gateway) Rider(ctx context.Context, addr common.Address) (*models.Rider, error) {
	out, err := g.call(ctx, RidersMethod, addr)
	if err != nil {
		return nil, err
	}
	return riderFromTuple(out)
}

func (g *Gateway) DriverDeposit(ctx context.Context) (*big.Int, error) {
	return g.callBig(ctx, DriverDepositMethod)
}

func (g *Gateway) RiderDeposit(ctx context.Context) (*big.Int, error) {
	return g.callBig(ctx, RiderDepositMethod)
}

func (g *Gateway) UserType(ctx context.Context, addr common.Address) (models.UserType, error) {
	out, err := g.call(ctx, GetUserTypeMethod, addr)
	if err != nil {
		return models.UserTypeNone, err
	}
	t, ok := out[0].(uint8)
	if !ok {
		return models.UserTypeNone, fmt.Errorf("ethereum: unexpected getUserType result %T", out[0])
	}
	return models.UserType(t), nil
}

func (g *Gateway) Account(ctx context.Context) (common.Address, error) {
	if g.account != (common.Address{}) {
		return g.account, nil
	}

	var accounts []common.Address
	if err := g.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		g.log.Error("failed to list node accounts", logger.Error(err))
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("ethereum: node manages no accounts")
	}
	return accounts[0], nil
}

func (g *Gateway) Balance(ctx context.Context) (*big.Int, error) {
	account, err := g.Account(ctx)
	if err != nil {
		return nil, err
	}

	var balance hexutil.Big
	if err := g.rpc.CallContext(ctx, &balance, "eth_getBalance", account, "latest"); err != nil {
		g.log.Error("failed to fetch balance", logger.Error(err))
		return nil, err
	}
	return (*big.Int)(&balance), nil
}

func (g *Gateway) CurrentJourney(ctx context.Context) (*models.Journey, error) {
	account, err := g.Account(ctx)
	if err != nil {
		return nil, err
	}
	userType, err := g.UserType(ctx, account)
	if err != nil {
		return nil, err
	}

	switch userType {
	case models.UserTypeRider:
		rider, err := g.Rider(ctx, account)
		if err != nil {
			return nil, err
		}
		driver, err := g.Driver(ctx, rider.Driver)
		if err != nil {
			return nil, err
		}
		return &models.Journey{Driver: driver, Rider: rider}, nil

	case models.UserTypeActiveDriver:
		driver, err := g.Driver(ctx, account)
		if err != nil {
			return nil, err
		}
		rider, err := g.Rider(ctx, driver.Rider)
		if err != nil {
			return nil, err
		}
		return &models.Journey{Driver: driver, Rider: rider}, nil

	default:
		return nil, nil
	}
}

// ------------ //
// RPC plumbing //
// ------------ //

type callParams struct {
	From  *common.Address `json:"from,omitempty"`
	To    common.Address  `json:"to"`
	Gas   hexutil.Uint64  `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data"`
}

type txReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
}

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}

	var raw hexutil.Bytes
	err = g.rpc.CallContext(ctx, &raw, "eth_call", callParams{To: g.contract, Data: data}, "latest")
	if err != nil {
		g.log.Error("contract read failed", logger.String("method", method), logger.Error(err))
		return nil, err
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("ethereum: decode %s result: %w", method, err)
	}
	return out, nil
}

func (g *Gateway) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := g.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ethereum: unexpected %s result %T", method, out[0])
	}
	return value, nil
}

// transact submits a contract write and blocks until it is mined. A node
// rejection or a reverted receipt surfaces as a SettlementError; it is up to
// the caller to re-read contract state before any retry.
func (g *Gateway) transact(ctx context.Context, method string, value *big.Int, args ...interface{}) (*chain.Receipt, error) {
	from, err := g.Account(ctx)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}

	params := callParams{
		From: &from,
		To:   g.contract,
		Gas:  hexutil.Uint64(g.gasLimit),
		Data: data,
	}
	if value != nil && value.Sign() > 0 {
		params.Value = (*hexutil.Big)(value)
	}

	var txHash common.Hash
	if err := g.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", params); err != nil {
		g.log.Error("contract write rejected", logger.String("method", method), logger.Error(err))
		return nil, &chain.SettlementError{Op: method, Err: err}
	}

	receipt, err := g.waitMined(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		g.log.Error("contract write reverted",
			logger.String("method", method),
			logger.String("tx", txHash.Hex()),
		)
		return nil, &chain.SettlementError{Op: method}
	}

	return &chain.Receipt{TxHash: txHash, GasUsed: uint64(receipt.GasUsed)}, nil
}

func (g *Gateway) waitMined(ctx context.Context, txHash common.Hash) (*txReceipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		var receipt *txReceipt
		if err := g.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash); err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
