package journal

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the recorded outcome of one bridge transfer leg.
type Status string

const (
	StatusDebited  Status = "debited"
	StatusCredited Status = "credited"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Direction distinguishes outbound debits from inbound credits.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Transfer is one journaled bridge message.
type Transfer struct {
	bun.BaseModel `bun:"table:bridge_transfers,alias:bt"`

	ID        string    `bun:"id,pk"`
	Direction Direction `bun:"direction,notnull"`
	Status    Status    `bun:"status,notnull"`
	GUID      string    `bun:"guid,notnull"`
	Nonce     int64     `bun:"nonce,notnull,default:0"`
	TokenID   int64     `bun:"token_id,notnull"`
	LedgerID  int64     `bun:"ledger_id,notnull"`
	Account   string    `bun:"account,notnull"`
	Relayer   string    `bun:"relayer"`
	Detail    string    `bun:"detail"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
