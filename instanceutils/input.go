package instanceutils

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/interfaces"
)

const (
	// MaxInputBits caps the packed width of one encrypted input.
	MaxInputBits = 2048
	// MaxInputValues caps the number of values of one encrypted input.
	MaxInputValues = 256
)

var (
	ErrInputTooLarge   = errors.New("encrypted input exceeds packing limits")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrEmptyInput      = errors.New("encrypted input has no values")
)

// EncryptedValue is one clear value waiting to be encrypted.
type EncryptedValue struct {
	Type  FheType
	Value *big.Int
}

// SubmitFunc turns the accumulated values into handles and an input proof.
type SubmitFunc func(ctx context.Context, contractAddress, userAddress common.Address, values []EncryptedValue) (*interfaces.EncryptedInputResult, error)

// InputBuilder implements interfaces.EncryptedInput on top of a SubmitFunc.
// The first range or size error sticks and is returned by Encrypt.
type InputBuilder struct {
	contractAddress common.Address
	userAddress     common.Address
	submit          SubmitFunc

	values []EncryptedValue
	bits   int
	err    error
}

func NewInputBuilder(contractAddress, userAddress common.Address, submit SubmitFunc) *InputBuilder {
	return &InputBuilder{
		contractAddress: contractAddress,
		userAddress:     userAddress,
		submit:          submit,
	}
}

func (b *InputBuilder) AddBool(v bool) interfaces.EncryptedInput {
	value := big.NewInt(0)
	if v {
		value.SetInt64(1)
	}
	return b.add(FheBool, value)
}

func (b *InputBuilder) Add8(v uint8) interfaces.EncryptedInput {
	return b.add(FheUint8, new(big.Int).SetUint64(uint64(v)))
}

func (b *InputBuilder) Add16(v uint16) interfaces.EncryptedInput {
	return b.add(FheUint16, new(big.Int).SetUint64(uint64(v)))
}

func (b *InputBuilder) Add32(v uint32) interfaces.EncryptedInput {
	return b.add(FheUint32, new(big.Int).SetUint64(uint64(v)))
}

func (b *InputBuilder) Add64(v uint64) interfaces.EncryptedInput {
	return b.add(FheUint64, new(big.Int).SetUint64(v))
}

func (b *InputBuilder) Add128(v *big.Int) interfaces.EncryptedInput {
	return b.add(FheUint128, v)
}

func (b *InputBuilder) Add256(v *big.Int) interfaces.EncryptedInput {
	return b.add(FheUint256, v)
}

func (b *InputBuilder) AddAddress(v common.Address) interfaces.EncryptedInput {
	return b.add(FheAddress, new(big.Int).SetBytes(v.Bytes()))
}

// Values returns a copy of the accumulated values.
func (b *InputBuilder) Values() []EncryptedValue {
	return append([]EncryptedValue(nil), b.values...)
}

func (b *InputBuilder) Encrypt(ctx context.Context) (*interfaces.EncryptedInputResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.values) == 0 {
		return nil, ErrEmptyInput
	}
	return b.submit(ctx, b.contractAddress, b.userAddress, b.Values())
}

func (b *InputBuilder) add(t FheType, v *big.Int) interfaces.EncryptedInput {
	if b.err != nil {
		return b
	}

	if v == nil || v.Sign() < 0 || v.BitLen() > t.Bits() {
		b.err = fmt.Errorf("%w: %v does not fit %s", ErrValueOutOfRange, v, t)
		return b
	}
	if len(b.values)+1 > MaxInputValues || b.bits+t.Bits() > MaxInputBits {
		b.err = fmt.Errorf("%w: %d values, %d bits", ErrInputTooLarge, len(b.values)+1, b.bits+t.Bits())
		return b
	}

	b.values = append(b.values, EncryptedValue{Type: t, Value: new(big.Int).Set(v)})
	b.bits += t.Bits()
	return b
}

// SerializeValues encodes values as a clear compact list:
// [count][type][32-byte big-endian value]...
func SerializeValues(values []EncryptedValue) []byte {
	out := make([]byte, 0, 1+len(values)*33)
	out = append(out, byte(len(values)))
	for _, v := range values {
		var word [32]byte
		v.Value.FillBytes(word[:])
		out = append(out, byte(v.Type))
		out = append(out, word[:]...)
	}
	return out
}

// DeserializeValues reverses SerializeValues.
func DeserializeValues(data []byte) ([]EncryptedValue, error) {
	if len(data) < 1 {
		return nil, errors.New("empty value list")
	}
	count := int(data[0])
	if len(data) != 1+count*33 {
		return nil, fmt.Errorf("value list of %d entries has %d bytes", count, len(data))
	}

	values := make([]EncryptedValue, count)
	for i := 0; i < count; i++ {
		entry := data[1+i*33 : 1+(i+1)*33]
		values[i] = EncryptedValue{
			Type:  FheType(entry[0]),
			Value: new(big.Int).SetBytes(entry[1:]),
		}
	}
	return values, nil
}

// ValueTypes lists the types of values in order.
func ValueTypes(values []EncryptedValue) []FheType {
	types := make([]FheType, len(values))
	for i, v := range values {
		types[i] = v.Type
	}
	return types
}
