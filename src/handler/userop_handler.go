package handler

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethaccount/userop/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserOpService is what the handler needs from service.UserOpService.
type UserOpService interface {
	EntryPoint() common.Address
	ChainID() *big.Int
	Hash(op erc4337.Operation, entryPoint common.Address, chainID *big.Int) (*service.HashResult, error)
	Encode(op erc4337.Operation, forSignature bool) (*service.EncodeResult, error)
	Submit(ctx context.Context, userOp *erc4337.UserOperation) (*domain.Submission, error)
	GetStatus(ctx context.Context, userOpHash common.Hash) (*repository.SubmissionStatusCache, error)
}

// OperationBuilder fills nonce, gas and fees into a new user operation.
type OperationBuilder interface {
	CreateUserOperation(ctx context.Context, params service.BuildParams) (*erc4337.UserOperation, error)
}

type UserOpHandler struct {
	userOpService UserOpService
	builder       OperationBuilder
}

func NewUserOpHandler(userOpService UserOpService, builder OperationBuilder) *UserOpHandler {
	return &UserOpHandler{
		userOpService: userOpService,
		builder:       builder,
	}
}

func (h *UserOpHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "userop").Logger()
	return &l
}

// OperationRequest carries exactly one of the unpacked or packed forms.
type OperationRequest struct {
	UserOperation       *erc4337.UserOperation `json:"userOperation"`
	PackedUserOperation *erc4337.PackedUserOp  `json:"packedUserOperation"`
}

func (r OperationRequest) operation() (erc4337.Operation, error) {
	switch {
	case r.UserOperation != nil && r.PackedUserOperation != nil:
		return erc4337.Operation{}, domain.NewError(domain.ErrorCodeParameterInvalid,
			errors.New("both userOperation and packedUserOperation set"),
			domain.WithMsg("provide either userOperation or packedUserOperation, not both"))
	case r.UserOperation != nil:
		return erc4337.Unpacked(r.UserOperation), nil
	case r.PackedUserOperation != nil:
		return erc4337.Packed(r.PackedUserOperation), nil
	default:
		return erc4337.Operation{}, domain.NewError(domain.ErrorCodeParameterInvalid,
			errors.New("missing user operation"),
			domain.WithMsg("userOperation or packedUserOperation is required"))
	}
}

type HashRequest struct {
	OperationRequest
	EntryPoint string   `json:"entryPoint" binding:"omitempty,eth_addr"`
	ChainID    *big.Int `json:"chainId" swaggertype:"integer"`
}

type EncodeRequest struct {
	OperationRequest
	ForSignature bool `json:"forSignature"`
}

type SubmitRequest struct {
	UserOperation *erc4337.UserOperation `json:"userOperation" binding:"required"`
}

type SubmitResponse struct {
	SubmissionID string                  `json:"submissionId"`
	UserOpHash   string                  `json:"userOpHash"`
	Status       domain.SubmissionStatus `json:"status"`
}

type BuildResponse struct {
	UserOperation *erc4337.UserOperation `json:"userOperation"`
	UserOpHash    common.Hash            `json:"userOpHash"`
}

type statusURI struct {
	Hash string `uri:"hash" binding:"required,userop_hash"`
}

// Hash godoc
// @Summary Compute the user operation hash
// @Description Packs the operation and returns the packed form, the intrinsic hash and the hash bound to entry point and chain. Entry point and chain default to the relay's own.
// @Tags userops
// @Accept json
// @Produce json
// @Param request body HashRequest true "operation to hash"
// @Success 200 {object} StandardResponse{data=service.HashResult}
// @Failure 400 {object} StandardResponse
// @Router /userops/hash [post]
func (h *UserOpHandler) Hash(c *gin.Context) {
	var req HashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	op, err := req.operation()
	if err != nil {
		respondWithError(c, err)
		return
	}

	entryPoint := h.userOpService.EntryPoint()
	if req.EntryPoint != "" {
		entryPoint = common.HexToAddress(req.EntryPoint)
	}
	chainID := req.ChainID
	if chainID == nil {
		chainID = h.userOpService.ChainID()
	}

	result, err := h.userOpService.Hash(op, entryPoint, chainID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, result)
}

// Encode godoc
// @Summary ABI-encode a user operation
// @Description forSignature=true returns the 256-byte encoding that is hashed; otherwise the full calldata encoding including the signature, with its calldata gas cost.
// @Tags userops
// @Accept json
// @Produce json
// @Param request body EncodeRequest true "operation to encode"
// @Success 200 {object} StandardResponse{data=service.EncodeResult}
// @Failure 400 {object} StandardResponse
// @Router /userops/encode [post]
func (h *UserOpHandler) Encode(c *gin.Context) {
	var req EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	op, err := req.operation()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.userOpService.Encode(op, req.ForSignature)
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, result)
}

// Build godoc
// @Summary Build an unsigned user operation
// @Description Reads the sender's nonce from the entry point, estimates gas through the bundler and fills in fees. The returned operation carries a dummy signature; sign userOpHash and replace it before submitting.
// @Tags userops
// @Accept json
// @Produce json
// @Param request body service.BuildRequest true "operation to build"
// @Success 200 {object} StandardResponse{data=BuildResponse}
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /userops/build [post]
func (h *UserOpHandler) Build(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Build").Logger()

	var req service.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	params, err := req.Params()
	if err != nil {
		respondWithError(c, bindError(err))
		return
	}

	userOp, err := h.builder.CreateUserOperation(c.Request.Context(), params)
	if err != nil {
		logger.Error().Err(err).Str("sender", params.Sender.Hex()).Msg("failed to build user operation")
		respondWithError(c, domain.NewError(domain.ErrorCodeRemoteProcess, err, domain.WithMsg("failed to build user operation")))
		return
	}

	result, err := h.userOpService.Hash(erc4337.Unpacked(userOp), h.userOpService.EntryPoint(), h.userOpService.ChainID())
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, BuildResponse{
		UserOperation: userOp,
		UserOpHash:    result.UserOpHash,
	})
}

// Submit godoc
// @Summary Queue a user operation for submission
// @Description Stores the operation and queues it for the submission worker, which signs it if unsigned, sends it to the bundler and waits for the receipt.
// @Tags userops
// @Accept json
// @Produce json
// @Param X-API-Secret header string false "shared secret, when the relay requires one"
// @Param request body SubmitRequest true "operation to submit"
// @Success 202 {object} StandardResponse{data=SubmitResponse}
// @Failure 400 {object} StandardResponse
// @Failure 401 {object} StandardResponse
// @Router /userops [post]
func (h *UserOpHandler) Submit(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Submit").Logger()

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithError(c, bindError(err))
		return
	}

	submission, err := h.userOpService.Submit(c.Request.Context(), req.UserOperation)
	if err != nil {
		logger.Error().Err(err).Msg("failed to submit user operation")
		respondWithError(c, err)
		return
	}

	logger.Info().
		Str("submission_id", submission.ID.String()).
		Str("user_op_hash", submission.UserOpHash).
		Msg("user operation accepted")

	respondWithSuccessAndStatus(c, http.StatusAccepted, SubmitResponse{
		SubmissionID: submission.ID.String(),
		UserOpHash:   submission.UserOpHash,
		Status:       submission.Status,
	}, "Accepted")
}

// GetStatus godoc
// @Summary Get submission status
// @Tags userops
// @Produce json
// @Param hash path string true "user operation hash"
// @Success 200 {object} StandardResponse{data=repository.SubmissionStatusCache}
// @Failure 400 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /userops/{hash} [get]
func (h *UserOpHandler) GetStatus(c *gin.Context) {
	var uri statusURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("hash must be a 0x-prefixed 32-byte hex string")))
		return
	}

	status, err := h.userOpService.GetStatus(c.Request.Context(), common.HexToHash(uri.Hash))
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, status)
}

// bindError reports malformed operation fields by name.
func bindError(err error) error {
	var fieldErr *erc4337.FieldError
	if errors.As(err, &fieldErr) {
		return domain.NewError(domain.ErrorCodeParameterInvalid, err,
			domain.WithMsg(err.Error()),
			domain.WithDetail(map[string]interface{}{"field": fieldErr.Field}))
	}
	return domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload"))
}
