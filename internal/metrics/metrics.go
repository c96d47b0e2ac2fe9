package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MintsTotal counts successful mints by classification.
	MintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_mints_total",
			Help: "Total number of tokens minted",
		},
		[]string{"classification"},
	)

	// BurnsTotal counts successful burns by classification.
	BurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_burns_total",
			Help: "Total number of tokens burned",
		},
		[]string{"classification"},
	)

	// FusionsTotal counts fuse and unfuse operations.
	FusionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_fusions_total",
			Help: "Total number of fuse/unfuse operations",
		},
		[]string{"operation"},
	)

	// OwnershipMutations counts registry mutations, including escrow moves.
	OwnershipMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_ownership_mutations_total",
			Help: "Total number of ownership mutations",
		},
		[]string{"kind"},
	)

	// BridgeMessages counts bridge debits and credits by outcome.
	BridgeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_bridge_messages_total",
			Help: "Total number of bridge messages processed",
		},
		[]string{"direction", "status"},
	)

	// FeesSwept counts fee sweep payouts per asset.
	FeesSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_fees_swept_total",
			Help: "Total number of fee sweeps executed",
		},
		[]string{"asset"},
	)

	// OperationErrors counts failed vault operations.
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_operation_errors_total",
			Help: "Total number of failed operations",
		},
		[]string{"operation"},
	)

	// SupplyAllocated tracks how many ids each range has handed out.
	SupplyAllocated = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vault_supply_allocated",
			Help: "Number of token ids allocated per range",
		},
		[]string{"range"},
	)
)
