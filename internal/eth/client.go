package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Registry keys for the contracts the balance refresher reads from.
const (
	TokenRegistryKey           = "Token"
	StakingRegistryKey         = "StakingProxy"
	DelegateManagerRegistryKey = "DelegateManager"
)

const (
	registryABIJSON = `[{"constant":true,"inputs":[{"name":"_name","type":"bytes32"}],"name":"getContract","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	erc20ABIJSON    = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	stakingABIJSON  = `[{"constant":true,"inputs":[{"name":"_addr","type":"address"}],"name":"totalStakedFor","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	delegateABIJSON = `[{"constant":true,"inputs":[{"name":"_delegator","type":"address"}],"name":"getTotalDelegatorStake","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

// Client wraps an Ethereum JSON-RPC connection with the small set of
// read-only contract calls this service needs.
type Client struct {
	ec       *ethclient.Client
	registry common.Address

	registryABI abi.ABI
	erc20ABI    abi.ABI
	stakingABI  abi.ABI
	delegateABI abi.ABI
}

func NewClient(rpcURL, registryAddr string) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to eth node: %w", err)
	}
	if !common.IsHexAddress(registryAddr) {
		return nil, fmt.Errorf("invalid registry address: %q", registryAddr)
	}

	c := &Client{ec: ec, registry: common.HexToAddress(registryAddr)}
	for _, def := range []struct {
		dst  *abi.ABI
		json string
	}{
		{&c.registryABI, registryABIJSON},
		{&c.erc20ABI, erc20ABIJSON},
		{&c.stakingABI, stakingABIJSON},
		{&c.delegateABI, delegateABIJSON},
	} {
		parsed, err := abi.JSON(strings.NewReader(def.json))
		if err != nil {
			return nil, fmt.Errorf("parse abi: %w", err)
		}
		*def.dst = parsed
	}
	return c, nil
}

func (c *Client) Close() {
	c.ec.Close()
}

// LatestBlock returns the chain tip number and hash.
func (c *Client) LatestBlock(ctx context.Context) (uint64, string, error) {
	header, err := c.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	return header.Number.Uint64(), header.Hash().Hex(), nil
}

// ResolveContract looks a contract address up in the registry by its
// bytes32 key.
func (c *Client) ResolveContract(ctx context.Context, name string) (common.Address, error) {
	key := RegistryKey(name)
	out, err := c.call(ctx, c.registry, c.registryABI, "getContract", key)
	if err != nil {
		return common.Address{}, fmt.Errorf("getContract(%s): %w", name, err)
	}
	addr := out[0].(common.Address)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("registry has no contract for %q", name)
	}
	return addr, nil
}

// TokenBalance returns the token balance of a wallet in wei.
func (c *Client) TokenBalance(ctx context.Context, token common.Address, wallet string) (*big.Int, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TotalStakedFor returns the amount a wallet has staked, in wei.
func (c *Client) TotalStakedFor(ctx context.Context, staking common.Address, wallet string) (*big.Int, error) {
	out, err := c.call(ctx, staking, c.stakingABI, "totalStakedFor", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TotalDelegatorStake returns the amount a wallet has delegated, in wei.
func (c *Client) TotalDelegatorStake(ctx context.Context, delegateManager common.Address, wallet string) (*big.Int, error) {
	out, err := c.call(ctx, delegateManager, c.delegateABI, "getTotalDelegatorStake", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// RegistryKey encodes a contract name as the right-padded bytes32 the
// registry contract expects.
func RegistryKey(name string) [32]byte {
	var key [32]byte
	copy(key[:], name)
	return key
}
