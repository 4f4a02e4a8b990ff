package rpc

import "net/http"

const (
	codeBankInvalidParams = -32041
	codeBankInternal      = -32042
)

type bankMintParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type bankBalanceParams struct {
	Address string `json:"address"`
}

type bankBalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (s *Server) handleBankMint(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params bankMintParams
	if hErr := decodeSingleParam(req, codeBankInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	addr, hErr := parseCallerAddress(codeBankInvalidParams, params.Address)
	if hErr != nil {
		return nil, hErr
	}
	amount, hErr := parsePositiveBigInt(codeBankInvalidParams, params.Amount)
	if hErr != nil {
		return nil, hErr
	}
	if err := s.node.BankMint(addr, amount); err != nil {
		return nil, &handlerError{status: http.StatusInternalServerError, code: codeBankInternal, message: "internal_error", data: err.Error()}
	}
	return true, nil
}

func (s *Server) handleBankGetBalance(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params bankBalanceParams
	if hErr := decodeSingleParam(req, codeBankInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	addr, hErr := parseCallerAddress(codeBankInvalidParams, params.Address)
	if hErr != nil {
		return nil, hErr
	}
	account, err := s.node.BankBalance(addr)
	if err != nil {
		return nil, &handlerError{status: http.StatusInternalServerError, code: codeBankInternal, message: "internal_error", data: err.Error()}
	}
	return bankBalanceResult{
		Address: params.Address,
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	}, nil
}
