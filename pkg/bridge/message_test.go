package bridge

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	sender = common.HexToAddress("0x1111111111111111111111111111111111111111")
	dest   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := EncodePayload(Payload{URI: "ipfs://QmToken", Restricted: true})
	if err != nil {
		t.Fatalf("encode payload failed: %v", err)
	}
	msg := &Message{
		DstLedgerID: 7,
		To:          dest,
		TokenID:     42,
		Compose:     EncodeEnvelope(sender, payload),
	}

	wire, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode message failed: %v", err)
	}
	decoded, err := DecodeMessage(wire)
	if err != nil {
		t.Fatalf("decode message failed: %v", err)
	}
	if decoded.To != dest || decoded.TokenID != 42 {
		t.Fatalf("unexpected message: %+v", decoded)
	}

	env, err := DecodeEnvelope(decoded.Compose)
	if err != nil {
		t.Fatalf("decode envelope failed: %v", err)
	}
	if env.Sender != sender {
		t.Fatalf("expected sender %s, got %s", sender.Hex(), env.Sender.Hex())
	}
	p, err := DecodePayload(env.Payload)
	if err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if p.URI != "ipfs://QmToken" || !p.Restricted {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	if _, err := DecodeMessage([]byte{0x01, 0x02}); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	// The envelope must carry a payload beyond the 32-byte sender word.
	for _, n := range []int{0, 16, 32} {
		if _, err := DecodeEnvelope(make([]byte, n)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("expected ErrMalformedEnvelope for %d bytes, got %v", n, err)
		}
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	if _, err := DecodePayload([]byte{0xff}); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestGUIDIsDeterministicAndDistinct(t *testing.T) {
	a := GUID(1, 1, dest, 42)
	b := GUID(1, 1, dest, 42)
	if a != b {
		t.Fatal("expected identical inputs to produce identical GUIDs")
	}

	variants := []common.Hash{
		GUID(2, 1, dest, 42),
		GUID(1, 2, dest, 42),
		GUID(1, 1, sender, 42),
		GUID(1, 1, dest, 43),
	}
	for i, v := range variants {
		if v == a {
			t.Fatalf("variant %d collided with the base GUID", i)
		}
	}
}
