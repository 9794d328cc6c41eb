package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruteri/tee-keymaster-core/interfaces"
	"github.com/ruteri/tee-keymaster-core/keymaster"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// ParamJSON is the wire form of a single authorization parameter.
// Bytes-typed tags carry a base64 blob, everything else a numeric value.
type ParamJSON struct {
	Tag   uint32 `json:"tag"`
	Value uint64 `json:"value,omitempty"`
	Blob  []byte `json:"blob,omitempty"`
}

// ParamsToSet converts wire parameters into an authorization set,
// deciding blob vs value from the payload type encoded in the tag id.
func ParamsToSet(params []ParamJSON) *interfaces.Set {
	set := interfaces.NewSet()
	for _, p := range params {
		tag := interfaces.Tag(p.Tag)
		switch tag.Type() {
		case interfaces.TypeBytes, interfaces.TypeBignum:
			set.Add(interfaces.BlobParam(tag, p.Blob))
		default:
			set.Add(interfaces.Param{Tag: tag, Value: p.Value})
		}
	}
	return set
}

// SetToParams converts an authorization set into its wire form.
func SetToParams(set *interfaces.Set) []ParamJSON {
	if set == nil {
		return nil
	}
	out := make([]ParamJSON, 0, set.Len())
	for _, p := range set.Params() {
		pj := ParamJSON{Tag: uint32(p.Tag)}
		switch p.Tag.Type() {
		case interfaces.TypeBytes, interfaces.TypeBignum:
			pj.Blob = p.Blob
		default:
			pj.Value = p.Value
		}
		out = append(out, pj)
	}
	return out
}

// Handler processes HTTP requests against a single keymaster context.
type Handler struct {
	km  *keymaster.Context
	log *slog.Logger
}

// NewHandler creates an HTTP request handler backed by the given context.
func NewHandler(km *keymaster.Context, log *slog.Logger) *Handler {
	return &Handler{km: km, log: log}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Error("Failed to decode request body", "err", err, "path", r.URL.Path)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// statusForError maps domain errors onto HTTP status codes. Caller
// mistakes map to 4xx, everything else stays a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidKeyBlob),
		errors.Is(err, interfaces.ErrInvalidArgument),
		errors.Is(err, interfaces.ErrUnsupportedAlgorithm),
		errors.Is(err, interfaces.ErrIncompatibleAlgorithm),
		errors.Is(err, interfaces.ErrIncompatiblePurpose),
		errors.Is(err, interfaces.ErrIncompatibleDigest),
		errors.Is(err, interfaces.ErrIncompatiblePaddingMode),
		errors.Is(err, interfaces.ErrRollbackResistanceUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAuthenticationFailure),
		errors.Is(err, interfaces.ErrNoUserConfirmation):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrRootOfTrustAlreadySet):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrKeyRequiresUpgrade):
		return http.StatusUpgradeRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}

type createKeyBlobRequest struct {
	Description []ParamJSON `json:"description"`
	Origin      uint32      `json:"origin"`
	KeyMaterial []byte      `json:"key_material"`
}

type createKeyBlobResponse struct {
	KeyBlob    []byte      `json:"key_blob"`
	HwEnforced []ParamJSON `json:"hw_enforced"`
	SwEnforced []ParamJSON `json:"sw_enforced"`
}

// HandleCreateKeyBlob wraps freshly generated or imported key material
// into an encrypted key blob.
//
// URL format: POST /api/v1/keyblob/create
func (h *Handler) HandleCreateKeyBlob(w http.ResponseWriter, r *http.Request) {
	var req createKeyBlobRequest
	if !h.decode(w, r, &req) {
		return
	}

	blob, hwEnforced, swEnforced, err := h.km.CreateKeyBlob(
		ParamsToSet(req.Description), interfaces.KeyOrigin(req.Origin), req.KeyMaterial)
	if err != nil {
		h.log.Error("Key blob creation failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, createKeyBlobResponse{
		KeyBlob:    blob,
		HwEnforced: SetToParams(hwEnforced),
		SwEnforced: SetToParams(swEnforced),
	})
}

type parseKeyBlobRequest struct {
	KeyBlob          []byte      `json:"key_blob"`
	AdditionalParams []ParamJSON `json:"additional_params"`
}

type parseKeyBlobResponse struct {
	Algorithm  uint32      `json:"algorithm"`
	HwEnforced []ParamJSON `json:"hw_enforced"`
	SwEnforced []ParamJSON `json:"sw_enforced"`
}

// HandleParseKeyBlob decrypts and validates a key blob. The response
// carries the authorization lists only, never the key material.
//
// URL format: POST /api/v1/keyblob/parse
func (h *Handler) HandleParseKeyBlob(w http.ResponseWriter, r *http.Request) {
	var req parseKeyBlobRequest
	if !h.decode(w, r, &req) {
		return
	}

	key, err := h.km.ParseKeyBlob(req.KeyBlob, ParamsToSet(req.AdditionalParams))
	if err != nil {
		h.log.Error("Key blob parsing failed", "err", err)
		h.writeError(w, err)
		return
	}

	algorithm, _ := key.HwEnforced().GetEnum(interfaces.TagAlgorithm)
	h.writeJSON(w, parseKeyBlobResponse{
		Algorithm:  algorithm,
		HwEnforced: SetToParams(key.HwEnforced()),
		SwEnforced: SetToParams(key.SwEnforced()),
	})
}

type upgradeKeyBlobRequest struct {
	KeyBlob       []byte      `json:"key_blob"`
	UpgradeParams []ParamJSON `json:"upgrade_params"`
}

type upgradeKeyBlobResponse struct {
	KeyBlob  []byte `json:"key_blob,omitempty"`
	Upgraded bool   `json:"upgraded"`
}

// HandleUpgradeKeyBlob rebinds a key blob to the current system version.
// If the blob is already current the response reports upgraded=false
// with no blob.
//
// URL format: POST /api/v1/keyblob/upgrade
func (h *Handler) HandleUpgradeKeyBlob(w http.ResponseWriter, r *http.Request) {
	var req upgradeKeyBlobRequest
	if !h.decode(w, r, &req) {
		return
	}

	upgraded, err := h.km.UpgradeKeyBlob(req.KeyBlob, ParamsToSet(req.UpgradeParams))
	if err != nil {
		h.log.Error("Key blob upgrade failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, upgradeKeyBlobResponse{KeyBlob: upgraded, Upgraded: upgraded != nil})
}

type unwrapKeyRequest struct {
	WrappedKeyBlob    []byte      `json:"wrapped_key_blob"`
	WrappingKeyBlob   []byte      `json:"wrapping_key_blob"`
	WrappingKeyParams []ParamJSON `json:"wrapping_key_params"`
	MaskingKey        []byte      `json:"masking_key"`
}

type unwrapKeyResponse struct {
	KeyBlob    []byte      `json:"key_blob"`
	HwEnforced []ParamJSON `json:"hw_enforced"`
	SwEnforced []ParamJSON `json:"sw_enforced"`
}

// HandleUnwrapKey imports a wrapped key. The recovered material is
// immediately re-wrapped into a key blob and never leaves the service
// in plaintext.
//
// URL format: POST /api/v1/key/unwrap
func (h *Handler) HandleUnwrapKey(w http.ResponseWriter, r *http.Request) {
	var req unwrapKeyRequest
	if !h.decode(w, r, &req) {
		return
	}

	material, wrappedParams, _, err := h.km.UnwrapKey(
		req.WrappedKeyBlob, req.WrappingKeyBlob,
		ParamsToSet(req.WrappingKeyParams), req.MaskingKey)
	if err != nil {
		h.log.Error("Key unwrapping failed", "err", err)
		h.writeError(w, err)
		return
	}

	blob, hwEnforced, swEnforced, err := h.km.CreateKeyBlob(wrappedParams, interfaces.OriginSecurelyImported, material)
	if err != nil {
		h.log.Error("Re-wrapping unwrapped key failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, unwrapKeyResponse{
		KeyBlob:    blob,
		HwEnforced: SetToParams(hwEnforced),
		SwEnforced: SetToParams(swEnforced),
	})
}

type bootParamsRequest struct {
	VerifiedBootKey   []byte `json:"verified_boot_key"`
	VerifiedBootState uint32 `json:"verified_boot_state"`
	DeviceLocked      bool   `json:"device_locked"`
	VerifiedBootHash  []byte `json:"verified_boot_hash"`
}

type bootParamsResponse struct {
	VerifiedBootKey   []byte `json:"verified_boot_key"`
	VerifiedBootState uint32 `json:"verified_boot_state"`
	DeviceLocked      bool   `json:"device_locked"`
	VerifiedBootHash  []byte `json:"verified_boot_hash"`
}

// HandleSetBootParams records the verified boot parameters. The
// parameters are write-once per boot, a second call returns 409.
//
// URL format: POST /api/v1/bootparams
func (h *Handler) HandleSetBootParams(w http.ResponseWriter, r *http.Request) {
	var req bootParamsRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.km.SetBootParams(req.VerifiedBootKey,
		interfaces.VerifiedBootState(req.VerifiedBootState),
		req.DeviceLocked, req.VerifiedBootHash)
	if err != nil {
		h.log.Error("Setting boot parameters failed", "err", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleGetBootParams returns the current root of trust.
//
// URL format: GET /api/v1/bootparams
func (h *Handler) HandleGetBootParams(w http.ResponseWriter, r *http.Request) {
	rot := h.km.GetVerifiedBootParams()
	h.writeJSON(w, bootParamsResponse{
		VerifiedBootKey:   rot.VerifiedBootKey,
		VerifiedBootState: uint32(rot.VerifiedBootState),
		DeviceLocked:      rot.DeviceLocked,
		VerifiedBootHash:  rot.VerifiedBootHash,
	})
}

type systemVersionBody struct {
	OSVersion    uint32 `json:"os_version"`
	OSPatchlevel uint32 `json:"os_patchlevel"`
}

// HandleSetSystemVersion records the system version. The first call
// wins, later calls are ignored.
//
// URL format: POST /api/v1/version
func (h *Handler) HandleSetSystemVersion(w http.ResponseWriter, r *http.Request) {
	var req systemVersionBody
	if !h.decode(w, r, &req) {
		return
	}

	h.km.SetSystemVersion(req.OSVersion, req.OSPatchlevel)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleGetSystemVersion returns the recorded system version.
//
// URL format: GET /api/v1/version
func (h *Handler) HandleGetSystemVersion(w http.ResponseWriter, r *http.Request) {
	osVersion, osPatchlevel := h.km.GetSystemVersion()
	h.writeJSON(w, systemVersionBody{OSVersion: osVersion, OSPatchlevel: osPatchlevel})
}

type attestationChainResponse struct {
	Chain [][]byte `json:"chain"`
}

// HandleAttestationChain returns the provisioned certificate chain for
// the requested algorithm ("rsa" or "ecdsa"), leaf first.
//
// URL format: GET /api/v1/attestation/chain/{algorithm}
func (h *Handler) HandleAttestationChain(w http.ResponseWriter, r *http.Request) {
	var alg interfaces.Algorithm
	switch r.PathValue("algorithm") {
	case "rsa":
		alg = interfaces.AlgorithmRSA
	case "ecdsa":
		alg = interfaces.AlgorithmEC
	default:
		http.Error(w, fmt.Sprintf("Unknown algorithm: %s", r.PathValue("algorithm")), http.StatusBadRequest)
		return
	}

	chain, err := h.km.GetAttestationChain(r.Context(), alg)
	if err != nil {
		h.log.Error("Attestation chain retrieval failed", "err", err, "algorithm", r.PathValue("algorithm"))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, attestationChainResponse{Chain: chain})
}

type addEntropyRequest struct {
	Data []byte `json:"data"`
}

// HandleAddEntropy mixes caller-provided entropy into the hardware RNG.
//
// URL format: POST /api/v1/entropy
func (h *Handler) HandleAddEntropy(w http.ResponseWriter, r *http.Request) {
	var req addEntropyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.km.AddRngEntropy(req.Data); err != nil {
		h.log.Error("Adding RNG entropy failed", "err", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

type verifyConfirmationRequest struct {
	Message           []byte `json:"message"`
	ConfirmationToken []byte `json:"confirmation_token"`
}

// HandleVerifyConfirmation checks a user confirmation token against a
// message. A mismatch returns 403.
//
// URL format: POST /api/v1/confirmation/verify
func (h *Handler) HandleVerifyConfirmation(w http.ResponseWriter, r *http.Request) {
	var req verifyConfirmationRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.km.CheckConfirmationToken(req.Message, req.ConfirmationToken); err != nil {
		h.log.Error("Confirmation token verification failed", "err", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"confirmed"}`))
}
