package rpc

import (
	"errors"
	"net/http"

	"deedvault/native/escrow"
)

const (
	codeEscrowInvalidParams  = -32021
	codeEscrowNotListed      = -32022
	codeEscrowForbidden      = -32023
	codeEscrowInvalidListing = -32024
	codeEscrowIncomplete     = -32025
	codeEscrowInternal       = -32026
)

type escrowRoleParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type escrowListParams struct {
	Caller        string `json:"caller"`
	AssetID       uint64 `json:"assetId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EarnestAmount string `json:"earnestAmount"`
}

type escrowDepositParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Amount  string `json:"amount"`
}

type escrowActorParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type escrowAssetParams struct {
	AssetID uint64 `json:"assetId"`
}

type escrowApprovalQueryParams struct {
	AssetID uint64 `json:"assetId"`
	Address string `json:"address"`
}

type listingJSON struct {
	AssetID          uint64   `json:"assetId"`
	Buyer            string   `json:"buyer"`
	PurchasePrice    string   `json:"purchasePrice"`
	EarnestAmount    string   `json:"earnestAmount"`
	Listed           bool     `json:"listed"`
	InspectionPassed bool     `json:"inspectionPassed"`
	Approvals        []string `json:"approvals,omitempty"`
	EarnestDeposited string   `json:"earnestDeposited"`
	BalanceDeposited string   `json:"balanceDeposited"`
	CancelledBy      *string  `json:"cancelledBy,omitempty"`
}

func formatListingJSON(l *escrow.Listing) listingJSON {
	out := listingJSON{
		AssetID:          l.AssetID,
		Buyer:            formatAddress(l.Buyer),
		PurchasePrice:    l.PurchasePrice.String(),
		EarnestAmount:    l.EarnestAmount.String(),
		Listed:           l.Listed,
		InspectionPassed: l.InspectionPassed,
		EarnestDeposited: l.EarnestDeposited.String(),
		BalanceDeposited: l.BalanceDeposited.String(),
	}
	for _, approval := range l.Approvals {
		out.Approvals = append(out.Approvals, formatAddress(approval))
	}
	if l.CancelledBy != ([20]byte{}) {
		cancelled := formatAddress(l.CancelledBy)
		out.CancelledBy = &cancelled
	}
	return out
}

func escrowError(err error) *handlerError {
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		return &handlerError{status: http.StatusForbidden, code: codeEscrowForbidden, message: "forbidden", data: err.Error()}
	case errors.Is(err, escrow.ErrNotListed):
		return &handlerError{status: http.StatusNotFound, code: codeEscrowNotListed, message: "not_listed", data: err.Error()}
	case errors.Is(err, escrow.ErrInvalidListing):
		return &handlerError{status: http.StatusConflict, code: codeEscrowInvalidListing, message: "invalid_listing", data: err.Error()}
	case errors.Is(err, escrow.ErrIncompleteSale):
		return &handlerError{status: http.StatusConflict, code: codeEscrowIncomplete, message: "incomplete_sale", data: err.Error()}
	default:
		return &handlerError{status: http.StatusInternalServerError, code: codeEscrowInternal, message: "internal_error", data: err.Error()}
	}
}

func (s *Server) escrowRoleHandler(req *RPCRequest, assign func(caller, addr [20]byte) error) (interface{}, *handlerError) {
	var params escrowRoleParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	addr, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Address)
	if hErr != nil {
		return nil, hErr
	}
	if err := assign(caller, addr); err != nil {
		return nil, escrowError(err)
	}
	return true, nil
}

func (s *Server) handleEscrowSetBuyer(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowRoleHandler(req, s.node.EscrowSetBuyer)
}

func (s *Server) handleEscrowSetLender(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowRoleHandler(req, s.node.EscrowSetLender)
}

func (s *Server) handleEscrowSetInspector(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowRoleHandler(req, s.node.EscrowSetInspector)
}

func (s *Server) handleEscrowList(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowListParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	buyer, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Buyer)
	if hErr != nil {
		return nil, hErr
	}
	price, hErr := parsePositiveBigInt(codeEscrowInvalidParams, params.PurchasePrice)
	if hErr != nil {
		return nil, hErr
	}
	earnest, hErr := parseNonNegativeBigInt(codeEscrowInvalidParams, params.EarnestAmount)
	if hErr != nil {
		return nil, hErr
	}
	listing, err := s.node.EscrowList(caller, params.AssetID, buyer, price, earnest)
	if err != nil {
		return nil, escrowError(err)
	}
	return formatListingJSON(listing), nil
}

func (s *Server) handleEscrowDepositEarnest(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowDepositParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	amount, hErr := parsePositiveBigInt(codeEscrowInvalidParams, params.Amount)
	if hErr != nil {
		return nil, hErr
	}
	if err := s.node.EscrowDepositEarnest(caller, params.AssetID, amount); err != nil {
		return nil, escrowError(err)
	}
	return true, nil
}

func (s *Server) handleEscrowDepositBalance(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowDepositParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	amount, hErr := parsePositiveBigInt(codeEscrowInvalidParams, params.Amount)
	if hErr != nil {
		return nil, hErr
	}
	if err := s.node.EscrowDepositBalance(caller, params.AssetID, amount); err != nil {
		return nil, escrowError(err)
	}
	return true, nil
}

func (s *Server) escrowActorHandler(req *RPCRequest, op func(caller [20]byte, assetID uint64) error) (interface{}, *handlerError) {
	var params escrowActorParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	if err := op(caller, params.AssetID); err != nil {
		return nil, escrowError(err)
	}
	return true, nil
}

func (s *Server) handleEscrowApproveInspection(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowActorHandler(req, s.node.EscrowApproveInspection)
}

func (s *Server) handleEscrowApproveSale(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowActorHandler(req, s.node.EscrowApproveSale)
}

func (s *Server) handleEscrowFinalize(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowActorHandler(req, s.node.EscrowFinalize)
}

func (s *Server) handleEscrowCancel(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	return s.escrowActorHandler(req, s.node.EscrowCancel)
}

func (s *Server) handleEscrowGetListing(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowAssetParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	listing, ok := s.node.EscrowGetListing(params.AssetID)
	if !ok {
		return nil, escrowError(escrow.ErrNotListed)
	}
	return formatListingJSON(listing), nil
}

func (s *Server) handleEscrowIsListed(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowAssetParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	return s.node.EscrowIsListed(params.AssetID), nil
}

func (s *Server) handleEscrowSaleApproved(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowApprovalQueryParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	addr, hErr := parseCallerAddress(codeEscrowInvalidParams, params.Address)
	if hErr != nil {
		return nil, hErr
	}
	approved, err := s.node.EscrowSaleApproved(params.AssetID, addr)
	if err != nil {
		return nil, escrowError(err)
	}
	return approved, nil
}

func (s *Server) handleEscrowCancelledBy(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params escrowAssetParams
	if hErr := decodeSingleParam(req, codeEscrowInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	cancelledBy, err := s.node.EscrowCancelledBy(params.AssetID)
	if err != nil {
		return nil, escrowError(err)
	}
	if cancelledBy == ([20]byte{}) {
		return nil, nil
	}
	return formatAddress(cancelledBy), nil
}

func (s *Server) handleEscrowGetBalance(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	balance, err := s.node.EscrowBalance()
	if err != nil {
		return nil, escrowError(err)
	}
	return balance.String(), nil
}

type escrowRolesResult struct {
	Seller    string  `json:"seller"`
	Buyer     *string `json:"buyer,omitempty"`
	Lender    *string `json:"lender,omitempty"`
	Inspector *string `json:"inspector,omitempty"`
}

func optionalAddress(addr [20]byte) *string {
	if addr == ([20]byte{}) {
		return nil
	}
	encoded := formatAddress(addr)
	return &encoded
}

func (s *Server) handleEscrowRoles(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	roles := s.node.EscrowRoles()
	return escrowRolesResult{
		Seller:    formatAddress(roles.Seller),
		Buyer:     optionalAddress(roles.Buyer),
		Lender:    optionalAddress(roles.Lender),
		Inspector: optionalAddress(roles.Inspector),
	}, nil
}
