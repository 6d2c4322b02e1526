package erc4337

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntryPointV07 address constant
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// UserOperation is the unpacked v0.7 user operation, as accepted by eth_sendUserOperation.
// Factory and Paymaster are nil when absent.
type UserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *big.Int        `json:"nonce"`
	Factory                       *common.Address `json:"factory"`
	FactoryData                   []byte          `json:"factoryData"`
	CallData                      []byte          `json:"callData"`
	CallGasLimit                  *big.Int        `json:"callGasLimit"`
	VerificationGasLimit          *big.Int        `json:"verificationGasLimit"`
	PreVerificationGas            *big.Int        `json:"preVerificationGas"`
	MaxFeePerGas                  *big.Int        `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *big.Int        `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *big.Int        `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *big.Int        `json:"paymasterPostOpGasLimit"`
	PaymasterData                 []byte          `json:"paymasterData"`
	Signature                     []byte          `json:"signature"`
}

type userOperationJSON struct {
	Sender                        string  `json:"sender"`
	Nonce                         string  `json:"nonce"`
	Factory                       *string `json:"factory"`
	FactoryData                   string  `json:"factoryData,omitempty"`
	CallData                      string  `json:"callData"`
	CallGasLimit                  string  `json:"callGasLimit"`
	VerificationGasLimit          string  `json:"verificationGasLimit"`
	PreVerificationGas            string  `json:"preVerificationGas"`
	MaxFeePerGas                  string  `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          string  `json:"maxPriorityFeePerGas"`
	Paymaster                     *string `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *string `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 string  `json:"paymasterData,omitempty"`
	Signature                     string  `json:"signature"`
}

// MarshalJSON renders the nonce zero-padded to 32 bytes and every other quantity as minimal hex.
func (uo UserOperation) MarshalJSON() ([]byte, error) {
	aux := userOperationJSON{
		Sender:                        uo.Sender.Hex(),
		Nonce:                         fmt.Sprintf("0x%064x", bigOrZero(uo.Nonce)),
		CallData:                      hexutil.Encode(uo.CallData),
		CallGasLimit:                  encodeBig(uo.CallGasLimit),
		VerificationGasLimit:          encodeBig(uo.VerificationGasLimit),
		PreVerificationGas:            encodeBig(uo.PreVerificationGas),
		MaxFeePerGas:                  encodeBig(uo.MaxFeePerGas),
		MaxPriorityFeePerGas:          encodeBig(uo.MaxPriorityFeePerGas),
		PaymasterVerificationGasLimit: encodeOptionalBig(uo.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       encodeOptionalBig(uo.PaymasterPostOpGasLimit),
		Signature:                     hexutil.Encode(uo.Signature),
	}
	if uo.Factory != nil {
		factory := uo.Factory.Hex()
		aux.Factory = &factory
		aux.FactoryData = hexutil.Encode(uo.FactoryData)
	}
	if uo.Paymaster != nil {
		paymaster := uo.Paymaster.Hex()
		aux.Paymaster = &paymaster
		aux.PaymasterData = hexutil.Encode(uo.PaymasterData)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON parses every hex field strictly; malformed input fails with ErrInvalidEncodingInput.
func (uo *UserOperation) UnmarshalJSON(data []byte) error {
	var aux userOperationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return invalidEncoding("userOperation", err.Error())
	}

	var (
		op  UserOperation
		err error
	)
	if op.Sender, err = ParseAddress("sender", aux.Sender); err != nil {
		return err
	}
	if op.Nonce, err = ParseHexBig("nonce", aux.Nonce); err != nil {
		return err
	}
	if op.Factory, err = ParseOptionalAddress("factory", aux.Factory); err != nil {
		return err
	}
	if op.FactoryData, err = ParseHexBytes("factoryData", aux.FactoryData); err != nil {
		return err
	}
	if op.CallData, err = ParseHexBytes("callData", aux.CallData); err != nil {
		return err
	}
	if op.CallGasLimit, err = ParseHexBig("callGasLimit", aux.CallGasLimit); err != nil {
		return err
	}
	if op.VerificationGasLimit, err = ParseHexBig("verificationGasLimit", aux.VerificationGasLimit); err != nil {
		return err
	}
	if op.PreVerificationGas, err = ParseHexBig("preVerificationGas", aux.PreVerificationGas); err != nil {
		return err
	}
	if op.MaxFeePerGas, err = ParseHexBig("maxFeePerGas", aux.MaxFeePerGas); err != nil {
		return err
	}
	if op.MaxPriorityFeePerGas, err = ParseHexBig("maxPriorityFeePerGas", aux.MaxPriorityFeePerGas); err != nil {
		return err
	}
	if op.Paymaster, err = ParseOptionalAddress("paymaster", aux.Paymaster); err != nil {
		return err
	}
	if op.PaymasterVerificationGasLimit, err = parseOptionalBig("paymasterVerificationGasLimit", aux.PaymasterVerificationGasLimit); err != nil {
		return err
	}
	if op.PaymasterPostOpGasLimit, err = parseOptionalBig("paymasterPostOpGasLimit", aux.PaymasterPostOpGasLimit); err != nil {
		return err
	}
	if op.PaymasterData, err = ParseHexBytes("paymasterData", aux.PaymasterData); err != nil {
		return err
	}
	if op.Signature, err = ParseHexBytes("signature", aux.Signature); err != nil {
		return err
	}

	*uo = op
	return nil
}

// Pack packs a UserOperation into the on-chain PackedUserOp layout of EntryPoint v0.7.
func (uo *UserOperation) Pack() (*PackedUserOp, error) {
	if err := checkWidth("nonce", uo.Nonce, uint256Bits); err != nil {
		return nil, err
	}
	if err := checkWidth("preVerificationGas", uo.PreVerificationGas, uint256Bits); err != nil {
		return nil, err
	}

	// verificationGasLimit occupies the high half
	accountGasLimits, err := packUint128("verificationGasLimit", "callGasLimit", uo.VerificationGasLimit, uo.CallGasLimit)
	if err != nil {
		return nil, err
	}
	gasFees, err := packUint128("maxPriorityFeePerGas", "maxFeePerGas", uo.MaxPriorityFeePerGas, uo.MaxFeePerGas)
	if err != nil {
		return nil, err
	}

	initCode := []byte{}
	if uo.Factory != nil {
		initCode = make([]byte, 0, common.AddressLength+len(uo.FactoryData))
		initCode = append(initCode, uo.Factory.Bytes()...)
		initCode = append(initCode, uo.FactoryData...)
	}

	paymasterAndData := []byte{}
	if uo.Paymaster != nil {
		if uo.PaymasterVerificationGasLimit == nil || uo.PaymasterPostOpGasLimit == nil {
			return nil, &FieldError{Field: "paymaster", Err: ErrMissingPaymasterGasLimits, Reason: uo.Paymaster.Hex()}
		}
		paymasterAndData, err = PackPaymasterData(*uo.Paymaster, uo.PaymasterVerificationGasLimit, uo.PaymasterPostOpGasLimit, uo.PaymasterData)
		if err != nil {
			return nil, err
		}
	}

	return &PackedUserOp{
		Sender:             uo.Sender,
		Nonce:              new(big.Int).Set(bigOrZero(uo.Nonce)),
		InitCode:           initCode,
		CallData:           common.CopyBytes(uo.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(bigOrZero(uo.PreVerificationGas)),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          common.CopyBytes(uo.Signature),
	}, nil
}

// PackedUserOp is the PackedUserOperation struct consumed by EntryPoint v0.7.
type PackedUserOp struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   common.Hash    `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            common.Hash    `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

type packedUserOpJSON struct {
	Sender             string `json:"sender"`
	Nonce              string `json:"nonce"`
	InitCode           string `json:"initCode"`
	CallData           string `json:"callData"`
	AccountGasLimits   string `json:"accountGasLimits"`
	PreVerificationGas string `json:"preVerificationGas"`
	GasFees            string `json:"gasFees"`
	PaymasterAndData   string `json:"paymasterAndData"`
	Signature          string `json:"signature"`
}

// MarshalJSON renders nonce and preVerificationGas as minimal-width hex.
func (puo PackedUserOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(packedUserOpJSON{
		Sender:             puo.Sender.Hex(),
		Nonce:              encodeBig(puo.Nonce),
		InitCode:           hexutil.Encode(puo.InitCode),
		CallData:           hexutil.Encode(puo.CallData),
		AccountGasLimits:   puo.AccountGasLimits.Hex(),
		PreVerificationGas: encodeBig(puo.PreVerificationGas),
		GasFees:            puo.GasFees.Hex(),
		PaymasterAndData:   hexutil.Encode(puo.PaymasterAndData),
		Signature:          hexutil.Encode(puo.Signature),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for PackedUserOp
func (puo *PackedUserOp) UnmarshalJSON(data []byte) error {
	var aux packedUserOpJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return invalidEncoding("packedUserOperation", err.Error())
	}

	var (
		op  PackedUserOp
		err error
	)
	if op.Sender, err = ParseAddress("sender", aux.Sender); err != nil {
		return err
	}
	if op.Nonce, err = ParseHexBig("nonce", aux.Nonce); err != nil {
		return err
	}
	if op.InitCode, err = ParseHexBytes("initCode", aux.InitCode); err != nil {
		return err
	}
	if op.CallData, err = ParseHexBytes("callData", aux.CallData); err != nil {
		return err
	}
	if op.AccountGasLimits, err = parseWord("accountGasLimits", aux.AccountGasLimits); err != nil {
		return err
	}
	if op.PreVerificationGas, err = ParseHexBig("preVerificationGas", aux.PreVerificationGas); err != nil {
		return err
	}
	if op.GasFees, err = parseWord("gasFees", aux.GasFees); err != nil {
		return err
	}
	if op.PaymasterAndData, err = ParseHexBytes("paymasterAndData", aux.PaymasterAndData); err != nil {
		return err
	}
	if op.Signature, err = ParseHexBytes("signature", aux.Signature); err != nil {
		return err
	}

	*puo = op
	return nil
}

func (puo *PackedUserOp) validate() error {
	if err := checkWidth("nonce", puo.Nonce, uint256Bits); err != nil {
		return err
	}
	return checkWidth("preVerificationGas", puo.PreVerificationGas, uint256Bits)
}

// Unpack reverses Pack, splitting initCode, the gas words and paymasterAndData.
func (puo *PackedUserOp) Unpack() (*UserOperation, error) {
	if err := puo.validate(); err != nil {
		return nil, err
	}

	op := &UserOperation{
		Sender:             puo.Sender,
		Nonce:              new(big.Int).Set(bigOrZero(puo.Nonce)),
		CallData:           common.CopyBytes(puo.CallData),
		PreVerificationGas: new(big.Int).Set(bigOrZero(puo.PreVerificationGas)),
		Signature:          common.CopyBytes(puo.Signature),
	}
	op.VerificationGasLimit, op.CallGasLimit = UnpackUint128(puo.AccountGasLimits)
	op.MaxPriorityFeePerGas, op.MaxFeePerGas = UnpackUint128(puo.GasFees)

	switch {
	case len(puo.InitCode) == 0:
	case len(puo.InitCode) < common.AddressLength:
		return nil, invalidEncoding("initCode", "shorter than a factory address")
	default:
		factory := common.BytesToAddress(puo.InitCode[:common.AddressLength])
		op.Factory = &factory
		op.FactoryData = common.CopyBytes(puo.InitCode[common.AddressLength:])
	}

	if len(puo.PaymasterAndData) > 0 {
		paymaster, vgl, postOp, data, err := unpackPaymasterData(puo.PaymasterAndData)
		if err != nil {
			return nil, err
		}
		op.Paymaster = &paymaster
		op.PaymasterVerificationGasLimit = vgl
		op.PaymasterPostOpGasLimit = postOp
		op.PaymasterData = data
	}

	return op, nil
}

// OperationKind discriminates the two accepted operation shapes.
type OperationKind int

const (
	KindUnpacked OperationKind = iota
	KindPacked
)

func (k OperationKind) String() string {
	switch k {
	case KindUnpacked:
		return "unpacked"
	case KindPacked:
		return "packed"
	default:
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
}

// Operation holds either an unpacked or an already packed user operation.
type Operation struct {
	kind     OperationKind
	unpacked *UserOperation
	packed   *PackedUserOp
}

// Unpacked wraps an unpacked user operation.
func Unpacked(op *UserOperation) Operation {
	return Operation{kind: KindUnpacked, unpacked: op}
}

// Packed wraps an already packed user operation.
func Packed(op *PackedUserOp) Operation {
	return Operation{kind: KindPacked, packed: op}
}

func (o Operation) Kind() OperationKind { return o.kind }

// Pack normalizes the operation to its packed form. Packed input is returned as is.
func (o Operation) Pack() (*PackedUserOp, error) {
	switch o.kind {
	case KindUnpacked:
		if o.unpacked == nil {
			return nil, invalidEncoding("userOperation", "nil operation")
		}
		return o.unpacked.Pack()
	case KindPacked:
		if o.packed == nil {
			return nil, invalidEncoding("packedUserOperation", "nil operation")
		}
		if err := o.packed.validate(); err != nil {
			return nil, err
		}
		return o.packed, nil
	default:
		return nil, invalidEncoding("operation", "unknown kind "+o.kind.String())
	}
}

// Unpack normalizes the operation to its unpacked form, the shape v0.7 bundlers accept.
func (o Operation) Unpack() (*UserOperation, error) {
	switch o.kind {
	case KindUnpacked:
		if o.unpacked == nil {
			return nil, invalidEncoding("userOperation", "nil operation")
		}
		// run the packer for validation only
		if _, err := o.unpacked.Pack(); err != nil {
			return nil, err
		}
		return o.unpacked, nil
	case KindPacked:
		if o.packed == nil {
			return nil, invalidEncoding("packedUserOperation", "nil operation")
		}
		return o.packed.Unpack()
	default:
		return nil, invalidEncoding("operation", "unknown kind "+o.kind.String())
	}
}
