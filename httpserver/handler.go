package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/api"
	"github.com/ruteri/fhevm-client/decryption"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/lifecycle"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError carries the HTTP status to answer with.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Instances is implemented by *lifecycle.Manager.
type Instances interface {
	State() lifecycle.State
	Refresh()
}

// Handler serves the encryption API on top of the lifecycle-managed
// instance. Decryption uses the daemon's own account.
type Handler struct {
	instances        Instances
	authorizations   *decryption.Cache
	signer           interfaces.TypedDataSigner
	defaultContracts []common.Address
	requestTimeout   time.Duration
	log              *slog.Logger
}

func NewHandler(instances Instances, authorizations *decryption.Cache, signer interfaces.TypedDataSigner, log *slog.Logger) *Handler {
	return &Handler{
		instances:      instances,
		authorizations: authorizations,
		signer:         signer,
		requestTimeout: time.Minute,
		log:            log,
	}
}

// WithDefaultContracts sets the contracts GET /api/authorization falls back to.
func (h *Handler) WithDefaultContracts(contracts []common.Address) *Handler {
	h.defaultContracts = contracts
	return h
}

func (h *Handler) WithRequestTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.requestTimeout = d
	}
	return h
}

// HandleInstance reports the lifecycle state.
//
// GET /api/instance
func (h *Handler) HandleInstance(w http.ResponseWriter, r *http.Request) {
	st := h.instances.State()
	resp := api.InstanceResponse{
		Status:     string(st.Status),
		Step:       string(st.Step),
		Generation: st.Generation,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if st.Instance != nil {
		if pk := st.Instance.GetPublicKey(); pk != nil {
			resp.PublicKeyID = pk.ID
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleRefresh restarts the instance build.
//
// POST /api/instance/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.instances.Refresh()
	h.log.Info("Instance refresh requested")
	h.writeJSON(w, http.StatusAccepted, api.InstanceResponse{Status: string(lifecycle.StatusLoading)})
}

// HandleEncrypt encrypts clear values for a contract and user.
//
// POST /api/encrypt
func (h *Handler) HandleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req api.EncryptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.encrypt(r.Context(), &req)
	if err != nil {
		h.log.Warn("Encryption failed", "err", err, slog.String("contract", req.ContractAddress.Hex()))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) encrypt(ctx context.Context, req *api.EncryptRequest) (*api.EncryptResponse, error) {
	if req.ContractAddress == (common.Address{}) || req.UserAddress == (common.Address{}) {
		return nil, badRequest(fmt.Errorf("%w: contract and user addresses are required", interfaces.ErrInvalidAddress))
	}
	if len(req.Values) == 0 {
		return nil, badRequest(instanceutils.ErrEmptyInput)
	}

	instance, err := h.readyInstance()
	if err != nil {
		return nil, err
	}

	input := instance.CreateEncryptedInput(req.ContractAddress, req.UserAddress)
	for i, v := range req.Values {
		if err := v.AddTo(input); err != nil {
			return nil, badRequest(fmt.Errorf("value %d: %w", i, err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	enc, err := input.Encrypt(ctx)
	if err != nil {
		if errors.Is(err, instanceutils.ErrValueOutOfRange) || errors.Is(err, instanceutils.ErrInputTooLarge) {
			return nil, badRequest(err)
		}
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: err}
	}
	return &api.EncryptResponse{Handles: enc.Handles, InputProof: enc.InputProof}, nil
}

// HandleDecrypt decrypts handles the daemon's account may read. A decryption
// authorization is signed on first use and cached.
//
// POST /api/decrypt
func (h *Handler) HandleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req api.DecryptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.decrypt(r.Context(), &req)
	if err != nil {
		h.log.Warn("Decryption failed", "err", err, slog.Int("handles", len(req.Handles)))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decrypt(ctx context.Context, req *api.DecryptRequest) (*api.DecryptResponse, error) {
	if len(req.Handles) == 0 {
		return nil, badRequest(errors.New("no handles to decrypt"))
	}

	instance, err := h.readyInstance()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	auth := h.authorizations.LoadOrSign(ctx, instance, contractsOf(req.Handles), h.signer, nil)
	if auth == nil {
		return nil, &RequestError{StatusCode: http.StatusForbidden, Err: interfaces.ErrSignatureRejected}
	}

	values, err := instance.UserDecrypt(ctx, req.Handles, auth.UserDecryptRequest())
	if err != nil {
		if errors.Is(err, instanceutils.ErrInvalidSignature) {
			return nil, &RequestError{StatusCode: http.StatusForbidden, Err: err}
		}
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: err}
	}

	resp := &api.DecryptResponse{UserAddress: auth.UserAddress, Values: make(map[string]string, len(values))}
	for handle, v := range values {
		resp.Values[handle.Hex()] = v.String()
	}
	return resp, nil
}

// HandleAuthorization describes the cached authorization of the daemon's
// account for the given contracts without prompting for a new one.
//
// GET /api/authorization?contract=0x...&contract=0x...
func (h *Handler) HandleAuthorization(w http.ResponseWriter, r *http.Request) {
	contracts := h.defaultContracts
	if raw := r.URL.Query()["contract"]; len(raw) > 0 {
		contracts = make([]common.Address, 0, len(raw))
		for _, c := range raw {
			if !common.IsHexAddress(c) {
				h.writeError(w, badRequest(fmt.Errorf("%w: %q", interfaces.ErrInvalidAddress, c)))
				return
			}
			contracts = append(contracts, common.HexToAddress(c))
		}
	}
	if len(contracts) == 0 {
		h.writeError(w, badRequest(errors.New("no contract given")))
		return
	}

	user, err := h.signer.Address(r.Context())
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusServiceUnavailable, Err: err})
		return
	}

	auth := h.authorizations.Load(r.Context(), user, contracts, "")
	if auth == nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusNotFound, Err: errors.New("no valid authorization cached")})
		return
	}

	h.writeJSON(w, http.StatusOK, api.AuthorizationResponse{
		UserAddress:       auth.UserAddress,
		ContractAddresses: auth.ContractAddresses,
		PublicKey:         auth.PublicKey,
		StartTimestamp:    auth.StartTimestamp,
		DurationDays:      auth.DurationDays,
		ExpiresAt:         auth.ExpiresAt().Unix(),
	})
}

func (h *Handler) readyInstance() (interfaces.Instance, error) {
	st := h.instances.State()
	if st.Status != lifecycle.StatusReady || st.Instance == nil {
		return nil, &RequestError{StatusCode: http.StatusServiceUnavailable, Err: fmt.Errorf("encryption instance is %s", st.Status)}
	}
	return st.Instance, nil
}

// contractsOf lists the distinct contracts of pairs in first-seen order.
func contractsOf(pairs []interfaces.HandleContractPair) []common.Address {
	seen := make(map[common.Address]struct{}, len(pairs))
	out := make([]common.Address, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.ContractAddress]; ok {
			continue
		}
		seen[p.ContractAddress] = struct{}{}
		out = append(out, p.ContractAddress)
	}
	return out
}

func badRequest(err error) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
