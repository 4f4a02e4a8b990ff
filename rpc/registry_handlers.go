package rpc

import (
	"errors"
	"net/http"

	"deedvault/native/registry"
)

const (
	codeRegistryInvalidParams = -32031
	codeRegistryNotFound      = -32032
	codeRegistryForbidden     = -32033
	codeRegistryInternal      = -32034
)

type registryMintParams struct {
	Owner string `json:"owner"`
	URI   string `json:"uri"`
}

type registryApproveParams struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	AssetID uint64 `json:"assetId"`
}

type registryAssetParams struct {
	AssetID uint64 `json:"assetId"`
}

type deedJSON struct {
	ID       uint64  `json:"id"`
	Owner    string  `json:"owner"`
	Approved *string `json:"approved,omitempty"`
	URI      string  `json:"uri"`
}

func formatDeedJSON(d *registry.Deed) deedJSON {
	out := deedJSON{ID: d.ID, Owner: formatAddress(d.Owner), URI: d.URI}
	if d.Approved != ([20]byte{}) {
		approved := formatAddress(d.Approved)
		out.Approved = &approved
	}
	return out
}

func registryError(err error) *handlerError {
	switch {
	case errors.Is(err, registry.ErrDeedNotFound):
		return &handlerError{status: http.StatusNotFound, code: codeRegistryNotFound, message: "deed_not_found", data: err.Error()}
	case errors.Is(err, registry.ErrNotAuthorized):
		return &handlerError{status: http.StatusForbidden, code: codeRegistryForbidden, message: "forbidden", data: err.Error()}
	default:
		return &handlerError{status: http.StatusInternalServerError, code: codeRegistryInternal, message: "internal_error", data: err.Error()}
	}
}

func (s *Server) handleRegistryMint(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params registryMintParams
	if hErr := decodeSingleParam(req, codeRegistryInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	owner, hErr := parseCallerAddress(codeRegistryInvalidParams, params.Owner)
	if hErr != nil {
		return nil, hErr
	}
	deed, err := s.node.RegistryMint(owner, params.URI)
	if err != nil {
		return nil, registryError(err)
	}
	return formatDeedJSON(deed), nil
}

func (s *Server) handleRegistryApprove(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params registryApproveParams
	if hErr := decodeSingleParam(req, codeRegistryInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	caller, hErr := parseCallerAddress(codeRegistryInvalidParams, params.Caller)
	if hErr != nil {
		return nil, hErr
	}
	to, hErr := parseCallerAddress(codeRegistryInvalidParams, params.To)
	if hErr != nil {
		return nil, hErr
	}
	if err := s.node.RegistryApprove(caller, to, params.AssetID); err != nil {
		return nil, registryError(err)
	}
	return true, nil
}

func (s *Server) handleRegistryOwnerOf(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params registryAssetParams
	if hErr := decodeSingleParam(req, codeRegistryInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	owner, err := s.node.RegistryOwnerOf(params.AssetID)
	if err != nil {
		return nil, registryError(err)
	}
	return formatAddress(owner), nil
}

func (s *Server) handleRegistryGetDeed(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params registryAssetParams
	if hErr := decodeSingleParam(req, codeRegistryInvalidParams, &params); hErr != nil {
		return nil, hErr
	}
	deed, err := s.node.RegistryDeed(params.AssetID)
	if err != nil {
		return nil, registryError(err)
	}
	return formatDeedJSON(deed), nil
}
