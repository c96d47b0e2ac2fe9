// Package bridge moves token identity between ledgers. The wire format is a
// base token-transfer message carrying an opaque composed sub-payload with
// the token's display metadata and restriction flag.
package bridge

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrMissingComposedMessage rejects an inbound transfer whose compose
	// section is absent; the payload is never decoded in that case.
	ErrMissingComposedMessage = errors.New("missing composed message")
	ErrMalformedMessage       = errors.New("malformed bridge message")
	ErrMalformedEnvelope      = errors.New("malformed compose envelope")
	ErrMalformedPayload       = errors.New("malformed compose payload")
)

// Payload is the application-level content of a composed message.
type Payload struct {
	URI        string
	Restricted bool
}

// Message is the base token-transfer message. Compose carries the envelope
// (sender identity word + encoded Payload); it is opaque at this level.
type Message struct {
	DstLedgerID uint32
	To          common.Address
	TokenID     uint64
	Compose     []byte
}

// Envelope separates the transport-level sender identity word from the
// application payload underneath it.
type Envelope struct {
	Sender  common.Address
	Payload []byte
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	typeAddress = mustType("address")
	typeUint256 = mustType("uint256")
	typeBytes   = mustType("bytes")
	typeString  = mustType("string")
	typeBool    = mustType("bool")

	messageArgs = abi.Arguments{
		{Name: "to", Type: typeAddress},
		{Name: "tokenId", Type: typeUint256},
		{Name: "compose", Type: typeBytes},
	}
	payloadArgs = abi.Arguments{
		{Name: "uri", Type: typeString},
		{Name: "restricted", Type: typeBool},
	}
)

// EncodePayload packs the application payload.
func EncodePayload(p Payload) ([]byte, error) {
	return payloadArgs.Pack(p.URI, p.Restricted)
}

// DecodePayload unpacks an application payload. Any length or shape mismatch
// is a hard failure; fields are never defaulted.
func DecodePayload(b []byte) (Payload, error) {
	vals, err := payloadArgs.Unpack(b)
	if err != nil {
		return Payload{}, errors.Join(ErrMalformedPayload, err)
	}
	uri, ok1 := vals[0].(string)
	restricted, ok2 := vals[1].(bool)
	if !ok1 || !ok2 {
		return Payload{}, ErrMalformedPayload
	}
	return Payload{URI: uri, Restricted: restricted}, nil
}

// EncodeEnvelope prefixes the payload with the 32-byte sender identity word.
func EncodeEnvelope(sender common.Address, payload []byte) []byte {
	out := make([]byte, 32+len(payload))
	copy(out[12:32], sender.Bytes())
	copy(out[32:], payload)
	return out
}

// DecodeEnvelope splits a compose section into its sender word and the
// application payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) <= 32 {
		return Envelope{}, ErrMalformedEnvelope
	}
	var sender common.Address
	copy(sender[:], b[12:32])
	return Envelope{Sender: sender, Payload: b[32:]}, nil
}

// Encode serializes the message for the transport.
func (m *Message) Encode() ([]byte, error) {
	return messageArgs.Pack(m.To, new(big.Int).SetUint64(m.TokenID), m.Compose)
}

// DecodeMessage parses a wire message received from the transport.
func DecodeMessage(b []byte) (*Message, error) {
	vals, err := messageArgs.Unpack(b)
	if err != nil {
		return nil, errors.Join(ErrMalformedMessage, err)
	}
	to, ok1 := vals[0].(common.Address)
	tokenID, ok2 := vals[1].(*big.Int)
	compose, ok3 := vals[2].([]byte)
	if !ok1 || !ok2 || !ok3 || !tokenID.IsUint64() {
		return nil, ErrMalformedMessage
	}
	return &Message{To: to, TokenID: tokenID.Uint64(), Compose: compose}, nil
}

// GUID derives the deterministic message identifier used for journaling and
// the compose acknowledgment.
func GUID(origin uint32, nonce uint64, to common.Address, tokenID uint64) common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], origin)
	binary.BigEndian.PutUint64(buf[4:], nonce)
	h.Write(buf[:])
	h.Write(to.Bytes())
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], tokenID)
	h.Write(idBuf[:])

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
