package rpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/accounts"
	"github.com/fortiblox/x1-tokensale/pkg/programs/token"
	"github.com/fortiblox/x1-tokensale/pkg/receipts"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

// parsePubkeyParam extracts a base58 pubkey from positional params.
func parsePubkeyParam(params json.RawMessage, index int, name string) (types.Pubkey, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return types.Pubkey{}, InvalidParamsError("invalid params")
	}
	if len(args) <= index {
		return types.Pubkey{}, InvalidParamsErrorf("missing %s parameter", name)
	}
	var str string
	if err := json.Unmarshal(args[index], &str); err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s", name)
	}
	pubkey, err := types.PubkeyFromBase58(str)
	if err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s: %v", name, err)
	}
	return pubkey, nil
}

func (s *Server) withContext(value interface{}) ResponseWithContext {
	return ResponseWithContext{
		Context: Context{Sequence: s.accountsDB.Sequence()},
		Value:   value,
	}
}

// getAccountInfo returns the account at the given address.
// Params: [pubkey]
func (s *Server) getAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	pubkey, rpcErr := parsePubkeyParam(params, 0, "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, err := s.accountsDB.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return s.withContext(nil), nil
		}
		return nil, InternalServerErrorf("load account: %v", err)
	}

	return s.withContext(AccountInfo{
		Lamports:   account.Lamports,
		Owner:      account.Owner.String(),
		Data:       base64.StdEncoding.EncodeToString(account.Data),
		Executable: account.Executable,
		RentEpoch:  account.RentEpoch,
	}), nil
}

// getBalance returns the lamport balance of an account.
// Params: [pubkey]
func (s *Server) getBalance(params json.RawMessage) (interface{}, *RPCError) {
	pubkey, rpcErr := parsePubkeyParam(params, 0, "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, err := s.accountsDB.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return s.withContext(uint64(0)), nil
		}
		return nil, InternalServerErrorf("load account: %v", err)
	}
	return s.withContext(account.Lamports), nil
}

// getTokenAccountBalance returns the token balance of a token account.
// Params: [pubkey]
func (s *Server) getTokenAccountBalance(params json.RawMessage) (interface{}, *RPCError) {
	pubkey, rpcErr := parsePubkeyParam(params, 0, "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, err := s.accountsDB.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return nil, AccountNotFoundError()
		}
		return nil, InternalServerErrorf("load account: %v", err)
	}
	if account.Owner != token.ProgramID {
		return nil, InvalidParamsError("not a token account")
	}
	ta, err := token.DeserializeTokenAccount(account.Data)
	if err != nil || !ta.Initialized {
		return nil, InvalidParamsError("not an initialized token account")
	}

	mintAccount, err := s.accountsDB.GetAccount(ta.Mint)
	if err != nil {
		return nil, InternalServerErrorf("load mint: %v", err)
	}
	mint, err := token.DeserializeMint(mintAccount.Data)
	if err != nil {
		return nil, InternalServerErrorf("decode mint: %v", err)
	}

	return s.withContext(TokenAmount{
		Amount:   fmt.Sprintf("%d", ta.Amount),
		Decimals: mint.Decimals,
		UIAmount: formatUIAmount(ta.Amount, mint.Decimals),
	}), nil
}

// getSaleState returns the sale record for a mint.
// Params: [mint]
func (s *Server) getSaleState(params json.RawMessage) (interface{}, *RPCError) {
	mint, rpcErr := parsePubkeyParam(params, 0, "mint")
	if rpcErr != nil {
		return nil, rpcErr
	}

	stateAddr, _, err := sale.StateAddress(mint)
	if err != nil {
		return nil, InternalServerErrorf("derive state address: %v", err)
	}
	custodyAddr, _, err := sale.CustodyAddress(mint)
	if err != nil {
		return nil, InternalServerErrorf("derive custody address: %v", err)
	}

	account, err := s.accountsDB.GetAccount(stateAddr)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return nil, SaleNotFoundError(mint.String())
		}
		return nil, InternalServerErrorf("load sale state: %v", err)
	}
	state, err := sale.DeserializeState(account.Data)
	if err != nil || !state.Initialized() {
		return nil, SaleNotFoundError(mint.String())
	}

	return s.withContext(SaleStateInfo{
		Mint:        mint.String(),
		State:       stateAddr.String(),
		Custody:     custodyAddr.String(),
		Admin:       state.Admin.String(),
		TotalTokens: state.TotalTokens,
		TokensSold:  state.TokensSold,
		Remaining:   state.TotalTokens - state.TokensSold,
	}), nil
}

// getRecentReceipts returns recent settlement receipts, newest first.
// Params: [] or [limit] or [limit, mint]
func (s *Server) getRecentReceipts(params json.RawMessage) (interface{}, *RPCError) {
	limit := 20
	var mintFilter *types.Pubkey

	if len(params) > 0 {
		var args []json.RawMessage
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, InvalidParamsError("invalid params")
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args[0], &limit); err != nil || limit <= 0 {
				return nil, InvalidParamsError("invalid limit")
			}
		}
		if len(args) > 1 {
			mint, rpcErr := parsePubkeyParam(params, 1, "mint")
			if rpcErr != nil {
				return nil, rpcErr
			}
			mintFilter = &mint
		}
	}
	if limit > 1000 {
		limit = 1000
	}

	var (
		list []*receipts.Receipt
		err  error
	)
	if mintFilter != nil {
		list, err = s.receipts.ByMint(*mintFilter, limit)
	} else {
		list, err = s.receipts.Recent(limit)
	}
	if err != nil {
		return nil, InternalServerErrorf("read receipts: %v", err)
	}

	out := make([]ReceiptInfo, len(list))
	for i, r := range list {
		out[i] = ReceiptInfo{
			Seq:       r.Seq,
			Kind:      r.Kind,
			Mint:      r.Mint.String(),
			Actor:     r.Actor.String(),
			Tokens:    r.Tokens,
			BaseUnits: r.BaseUnits,
			Lamports:  r.Lamports,
			Time:      r.Time.Format(time.RFC3339Nano),
			Hash:      fmt.Sprintf("%x", r.Hash[:]),
		}
	}
	return out, nil
}

// getHealth returns "ok" when the node is healthy.
func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

// getVersion returns the node version.
func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{Version: Version}, nil
}

// getMinimumBalanceForRentExemption returns the rent-exempt minimum for an
// account of the given data size.
// Params: [dataSize]
func (s *Server) getMinimumBalanceForRentExemption(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}
	if len(args) < 1 {
		return nil, InvalidParamsError("missing data size parameter")
	}
	var size uint64
	if err := json.Unmarshal(args[0], &size); err != nil {
		return nil, InvalidParamsError("invalid data size")
	}

	// Same formula the runtime applies when creating accounts.
	const (
		lamportsPerByteYear = 3480
		exemptionThreshold  = 2
		accountOverhead     = 128
	)
	return (size + accountOverhead) * lamportsPerByteYear * exemptionThreshold, nil
}

// formatUIAmount renders base units as a decimal token amount.
func formatUIAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}
	divisor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		divisor *= 10
	}
	whole := amount / divisor
	frac := amount % divisor
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%0*d", whole, int(decimals), frac)
}
