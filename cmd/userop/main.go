// Command userop builds, signs and submits a single user operation, then waits for its
// receipt. The operation is described by a JSON file passed as the only argument, in the
// same form the relay's build endpoint accepts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/app"
	"github.com/ethaccount/userop/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func loadBuildParams(path string) (service.BuildParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.BuildParams{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var req service.BuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return service.BuildParams{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return req.Params()
}

func requireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("REQUIRED: %s not set in environment", key)
	}
	return value
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <operation.json>", os.Args[0])
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Fatalf("Error loading .env file: %v", err)
		}
	}

	rpcURL := requireEnv("RPC_URL")
	bundlerURL := requireEnv("BUNDLER_URL")
	privateKey := strings.TrimPrefix(requireEnv("PRIVATE_KEY"), "0x")

	entryPoint := erc4337.EntryPointV07
	if value := os.Getenv("ENTRY_POINT"); value != "" {
		entryPoint = common.HexToAddress(value)
	}

	logger := app.InitLogger(os.Getenv("LOG_LEVEL"), "dev")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	if err := run(ctx, os.Args[1], rpcURL, bundlerURL, privateKey, entryPoint); err != nil {
		logger.Error().Err(err).Msg("User operation failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, path, rpcURL, bundlerURL, privateKey string, entryPoint common.Address) error {
	logger := zerolog.Ctx(ctx)

	params, err := loadBuildParams(path)
	if err != nil {
		return err
	}

	signer, err := service.NewECDSASigner(privateKey, true)
	if err != nil {
		return err
	}
	logger.Info().Str("signer", signer.Address().Hex()).Msg("Signing with address")

	ethClient, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC: %w", err)
	}
	defer ethClient.Close()

	bundler, err := erc4337.DialContext(ctx, bundlerURL)
	if err != nil {
		return fmt.Errorf("failed to connect to bundler: %w", err)
	}
	defer bundler.Close()

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}

	builder := service.NewUserOpBuilder(
		ethClient,
		service.NewGasEstimator(bundler, service.DefaultVerificationGasMargin, service.DefaultPreVerificationGasMargin),
		service.NewFeeOracle(ethClient, decimal.Zero),
		entryPoint,
	)

	userOp, err := builder.CreateUserOperation(ctx, params)
	if err != nil {
		return err
	}

	userOpHash, err := erc4337.GetUserOpHash(erc4337.Unpacked(userOp), entryPoint, chainID)
	if err != nil {
		return err
	}
	logger.Info().
		Str("user_op_hash", userOpHash.Hex()).
		Str("nonce", userOp.Nonce.String()).
		Str("max_fee_per_gas", userOp.MaxFeePerGas.String()).
		Msg("User operation built")

	if userOp.Signature, err = signer.SignUserOpHash(ctx, userOpHash); err != nil {
		return err
	}

	waitConfig := erc4337.DefaultWaitConfig()
	waitConfig.OnStateChange = func(state erc4337.SubmissionState, hash common.Hash, attempt int) {
		logger.Debug().
			Str("state", state.String()).
			Str("user_op_hash", hash.Hex()).
			Int("attempt", attempt).
			Msg("Submission state changed")
	}

	receipt, err := erc4337.SendUserOpAndWait(ctx, bundler, erc4337.Unpacked(userOp), entryPoint, waitConfig)
	if err != nil {
		return err
	}

	event := logger.Info()
	if !receipt.Success {
		event = logger.Warn().Str("reason", receipt.Reason)
	}
	event.
		Str("user_op_hash", receipt.UserOpHash.Hex()).
		Str("tx_hash", receipt.TransactionHash().Hex()).
		Bool("success", receipt.Success).
		Str("actual_gas_cost", bigString(receipt.ActualGasCost.ToInt())).
		Str("actual_gas_used", bigString(receipt.ActualGasUsed.ToInt())).
		Msg("User operation receipt received")
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
