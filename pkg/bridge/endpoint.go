package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/relicvault/internal/metrics"
	"github.com/chainsafe/relicvault/pkg/journal"
	"github.com/chainsafe/relicvault/pkg/token"
)

var (
	ErrZeroDestination      = errors.New("destination address is unset")
	ErrUnknownToken         = errors.New("unknown token")
	ErrInspectionRejected   = errors.New("message rejected by inspector")
	ErrTransportUnavailable = errors.New("transport send failed")
)

// SoulboundDestinationError rejects bridging a restricted token anywhere but
// to its own current owner on the other ledger.
type SoulboundDestinationError struct {
	TokenID  uint64
	Expected common.Address
	Got      common.Address
}

func (e *SoulboundDestinationError) Error() string {
	return fmt.Sprintf("soulbound token %d may only bridge to its owner %s, got %s",
		e.TokenID, e.Expected.Hex(), e.Got.Hex())
}

// Ledger is the vault surface the endpoint drives.
type Ledger interface {
	Token(tokenID uint64) (token.Record, bool)
	Debit(caller common.Address, tokenID uint64) error
	Credit(to common.Address, tokenID uint64, uri string, restricted bool) error
}

// Inspector is the optional external message-inspection capability. A
// non-nil error aborts the outbound send.
type Inspector interface {
	Inspect(ctx context.Context, msg *Message) error
}

// Transport carries serialized messages between ledgers. It is assumed
// reliable and ordered per channel; its dedup guarantees are still not
// trusted by the credit path.
type Transport interface {
	Send(ctx context.Context, dst uint32, payload []byte) error
	// Compose delivers the follow-up acknowledgment to the credited
	// recipient after an inbound transfer has been applied.
	Compose(ctx context.Context, to common.Address, guid common.Hash, payload []byte) error
}

// Journal is the optional durable transfer journal.
type Journal interface {
	Record(ctx context.Context, t *journal.Transfer) error
}

// Endpoint implements the bridge protocol for one ledger.
type Endpoint struct {
	ledgerID  uint32
	account   common.Address
	vault     Ledger
	transport Transport
	inspector Inspector
	journal   Journal
	logger    *zap.Logger

	nonce uint64
}

// New creates a bridge endpoint. inspector and journal may be nil.
func New(ledgerID uint32, account common.Address, vault Ledger, transport Transport,
	inspector Inspector, jrnl Journal, logger *zap.Logger) *Endpoint {
	return &Endpoint{
		ledgerID:  ledgerID,
		account:   account,
		vault:     vault,
		transport: transport,
		inspector: inspector,
		journal:   jrnl,
		logger:    logger,
	}
}

// ResumeFrom sets the outbound nonce counter. Called at startup with the
// highest journaled outbound nonce so a restarted process never re-derives a
// GUID already used by a previous run.
func (e *Endpoint) ResumeFrom(nonce uint64) { e.nonce = nonce }

// BuildOutbound constructs the outbound message for a token from current
// state, enforcing the soulbound self-send rule, and runs it through the
// inspector when one is configured.
func (e *Endpoint) BuildOutbound(ctx context.Context, to common.Address, tokenID uint64, dst uint32) (*Message, error) {
	if to == (common.Address{}) {
		return nil, ErrZeroDestination
	}
	rec, ok := e.vault.Token(tokenID)
	if !ok {
		return nil, ErrUnknownToken
	}
	if rec.Restricted && to != rec.Owner {
		return nil, &SoulboundDestinationError{TokenID: tokenID, Expected: rec.Owner, Got: to}
	}

	payload, err := EncodePayload(Payload{URI: rec.URI, Restricted: rec.Restricted})
	if err != nil {
		return nil, err
	}
	msg := &Message{
		DstLedgerID: dst,
		To:          to,
		TokenID:     tokenID,
		Compose:     EncodeEnvelope(e.account, payload),
	}

	if e.inspector != nil {
		if err := e.inspector.Inspect(ctx, msg); err != nil {
			return nil, errors.Join(ErrInspectionRejected, err)
		}
	}
	return msg, nil
}

// Send builds the outbound message, debits the token locally and hands the
// serialized message to the transport. A transport failure restores the
// token to its owner, so the operation is all-or-nothing. Returns the
// message GUID.
func (e *Endpoint) Send(ctx context.Context, caller, to common.Address, tokenID uint64, dst uint32) (common.Hash, error) {
	msg, err := e.BuildOutbound(ctx, to, tokenID, dst)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionOutbound), "rejected").Inc()
		return common.Hash{}, err
	}
	wire, err := msg.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	rec, ok := e.vault.Token(tokenID)
	if !ok {
		return common.Hash{}, ErrUnknownToken
	}

	if err := e.vault.Debit(caller, tokenID); err != nil {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionOutbound), "rejected").Inc()
		return common.Hash{}, err
	}

	e.nonce++
	guid := GUID(e.ledgerID, e.nonce, to, tokenID)

	if err := e.transport.Send(ctx, dst, wire); err != nil {
		// Nothing left the process, so no credit can ever arrive on the
		// destination. Undo the debit locally or the token is lost.
		if creditErr := e.vault.Credit(rec.Owner, tokenID, rec.URI, rec.Restricted); creditErr != nil {
			e.logger.Error("Failed to restore token after transport failure",
				zap.Uint64("token_id", tokenID),
				zap.Error(creditErr))
		}
		e.record(ctx, journal.DirectionOutbound, journal.StatusFailed, guid, e.nonce, tokenID, int64(dst), to, common.Address{}, err.Error())
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionOutbound), "failed").Inc()
		return common.Hash{}, errors.Join(ErrTransportUnavailable, err)
	}

	e.record(ctx, journal.DirectionOutbound, journal.StatusDebited, guid, e.nonce, tokenID, int64(dst), to, common.Address{}, "")
	metrics.BridgeMessages.WithLabelValues(string(journal.DirectionOutbound), "ok").Inc()
	e.logger.Info("Bridged token out",
		zap.Uint64("token_id", tokenID),
		zap.Uint32("destination", dst),
		zap.String("to", to.Hex()),
		zap.String("guid", guid.Hex()))
	return guid, nil
}

// Receive applies an inbound transfer: decodes the wire message, credits the
// token, and emits the compose acknowledgment carrying the same payload.
// Replayed or duplicated messages fail the credit's exists-check and are
// journaled as rejected.
func (e *Endpoint) Receive(ctx context.Context, origin uint32, nonce uint64, wire []byte, relayer common.Address) error {
	msg, err := DecodeMessage(wire)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "malformed").Inc()
		return err
	}
	if len(msg.Compose) == 0 {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "malformed").Inc()
		return ErrMissingComposedMessage
	}
	env, err := DecodeEnvelope(msg.Compose)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "malformed").Inc()
		return err
	}
	payload, err := DecodePayload(env.Payload)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "malformed").Inc()
		return err
	}

	guid := GUID(origin, nonce, msg.To, msg.TokenID)

	if err := e.vault.Credit(msg.To, msg.TokenID, payload.URI, payload.Restricted); err != nil {
		e.record(ctx, journal.DirectionInbound, journal.StatusRejected, guid, nonce, msg.TokenID, int64(origin), msg.To, relayer, err.Error())
		metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "rejected").Inc()
		return err
	}

	if err := e.transport.Compose(ctx, msg.To, guid, env.Payload); err != nil {
		// The credit is applied; the acknowledgment is best-effort for
		// destination-side observers.
		e.logger.Warn("Compose acknowledgment failed",
			zap.Uint64("token_id", msg.TokenID),
			zap.String("guid", guid.Hex()),
			zap.Error(err))
	}

	e.record(ctx, journal.DirectionInbound, journal.StatusCredited, guid, nonce, msg.TokenID, int64(origin), msg.To, relayer, "")
	metrics.BridgeMessages.WithLabelValues(string(journal.DirectionInbound), "ok").Inc()
	e.logger.Info("Bridged token in",
		zap.Uint64("token_id", msg.TokenID),
		zap.Uint32("origin", origin),
		zap.String("to", msg.To.Hex()),
		zap.String("guid", guid.Hex()))
	return nil
}

func (e *Endpoint) record(ctx context.Context, dir journal.Direction, status journal.Status,
	guid common.Hash, nonce, tokenID uint64, ledgerID int64, account, relayer common.Address, detail string) {
	if e.journal == nil {
		return
	}
	t := &journal.Transfer{
		Direction: dir,
		Status:    status,
		GUID:      guid.Hex(),
		Nonce:     int64(nonce),
		TokenID:   int64(tokenID),
		LedgerID:  ledgerID,
		Account:   account.Hex(),
		Detail:    detail,
	}
	if relayer != (common.Address{}) {
		t.Relayer = relayer.Hex()
	}
	if err := e.journal.Record(ctx, t); err != nil {
		e.logger.Warn("Failed to journal bridge transfer",
			zap.String("guid", guid.Hex()),
			zap.Error(err))
	}
}
