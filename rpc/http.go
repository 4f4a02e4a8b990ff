package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"deedvault/core"
	"deedvault/crypto"
	"deedvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "DEEDVAULT_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

type Server struct {
	node      *core.Node
	authToken string
	metrics   *observability.ModuleMetricsRegistry
}

func NewServer(node *core.Node) *Server {
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		metrics:   observability.ModuleMetrics(),
	}
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	http.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, nil)
}

// Handler exposes the routing entry point for tests and embedding.
func (s *Server) Handler() http.HandlerFunc { return s.handle }

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handlerError carries the HTTP status alongside the JSON-RPC error body.
type handlerError struct {
	status  int
	code    int
	message string
	data    interface{}
}

func errInvalidParams(code int, data interface{}) *handlerError {
	return &handlerError{status: http.StatusBadRequest, code: code, message: "invalid_params", data: data}
}

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *handlerError)

type route struct {
	module      string
	requireAuth bool
	handler     handlerFunc
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"escrow_setBuyer":          {module: "escrow", requireAuth: true, handler: s.handleEscrowSetBuyer},
		"escrow_setLender":         {module: "escrow", requireAuth: true, handler: s.handleEscrowSetLender},
		"escrow_setInspector":      {module: "escrow", requireAuth: true, handler: s.handleEscrowSetInspector},
		"escrow_list":              {module: "escrow", requireAuth: true, handler: s.handleEscrowList},
		"escrow_depositEarnest":    {module: "escrow", requireAuth: true, handler: s.handleEscrowDepositEarnest},
		"escrow_depositBalance":    {module: "escrow", requireAuth: true, handler: s.handleEscrowDepositBalance},
		"escrow_approveInspection": {module: "escrow", requireAuth: true, handler: s.handleEscrowApproveInspection},
		"escrow_approveSale":       {module: "escrow", requireAuth: true, handler: s.handleEscrowApproveSale},
		"escrow_finalize":          {module: "escrow", requireAuth: true, handler: s.handleEscrowFinalize},
		"escrow_cancel":            {module: "escrow", requireAuth: true, handler: s.handleEscrowCancel},
		"escrow_getListing":        {module: "escrow", handler: s.handleEscrowGetListing},
		"escrow_isListed":          {module: "escrow", handler: s.handleEscrowIsListed},
		"escrow_saleApproved":      {module: "escrow", handler: s.handleEscrowSaleApproved},
		"escrow_cancelledBy":       {module: "escrow", handler: s.handleEscrowCancelledBy},
		"escrow_getBalance":        {module: "escrow", handler: s.handleEscrowGetBalance},
		"escrow_roles":             {module: "escrow", handler: s.handleEscrowRoles},
		"registry_mint":            {module: "registry", requireAuth: true, handler: s.handleRegistryMint},
		"registry_approve":         {module: "registry", requireAuth: true, handler: s.handleRegistryApprove},
		"registry_ownerOf":         {module: "registry", handler: s.handleRegistryOwnerOf},
		"registry_getDeed":         {module: "registry", handler: s.handleRegistryGetDeed},
		"bank_mint":                {module: "bank", requireAuth: true, handler: s.handleBankMint},
		"bank_getBalance":          {module: "bank", handler: s.handleBankGetBalance},
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler: it decodes the envelope, routes to the
// module handler, writes the response and records module metrics.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}

	rt, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if rt.requireAuth {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, authErr.status, req.ID, authErr.code, authErr.message, authErr.data)
			return
		}
	}

	start := time.Now()
	result, handlerErr := rt.handler(r, req)
	if handlerErr != nil {
		s.metrics.Observe(rt.module, req.Method, "error", time.Since(start))
		s.metrics.ObserveError(rt.module, req.Method, strconv.Itoa(handlerErr.code))
		writeError(w, handlerErr.status, req.ID, handlerErr.code, handlerErr.message, handlerErr.data)
		return
	}
	s.metrics.Observe(rt.module, req.Method, "ok", time.Since(start))
	writeResult(w, req.ID, result)
}

// requireAuth validates the bearer token on state-mutating methods. An empty
// configured token disables auth for local development.
func (s *Server) requireAuth(r *http.Request) *handlerError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &handlerError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &handlerError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "invalid bearer token"}
	}
	return nil
}

// --- shared parsing helpers ---

func decodeSingleParam(req *RPCRequest, code int, out interface{}) *handlerError {
	if len(req.Params) != 1 {
		return errInvalidParams(code, "exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errInvalidParams(code, err.Error())
	}
	return nil
}

func parseCallerAddress(code int, value string) ([20]byte, *handlerError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, errInvalidParams(code, err.Error())
	}
	return addr.Raw(), nil
}

func parsePositiveBigInt(code int, value string) (*big.Int, *handlerError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, errInvalidParams(code, fmt.Sprintf("malformed amount %q", value))
	}
	if amount.Sign() <= 0 {
		return nil, errInvalidParams(code, "amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(code int, value string) (*big.Int, *handlerError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, errInvalidParams(code, fmt.Sprintf("malformed amount %q", value))
	}
	if amount.Sign() < 0 {
		return nil, errInvalidParams(code, "amount must be non-negative")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(addr[:]).String()
}
