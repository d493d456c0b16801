// Package types provides common type definitions for the repinning system.
package types

// AssetStatus represents the migration status of a single asset
type AssetStatus string

const (
	// AssetPending represents an asset waiting to be migrated
	AssetPending AssetStatus = "pending"
	// AssetInProgress represents an asset whose CID is currently being pinned
	AssetInProgress AssetStatus = "in_progress"
	// AssetPinned represents an asset whose CID was pinned on the destination provider
	AssetPinned AssetStatus = "pinned"
	// AssetFailed represents an asset whose CID could not be pinned
	AssetFailed AssetStatus = "failed"
	// AssetSkipped represents an asset excluded from migration (no decodable CID)
	AssetSkipped AssetStatus = "skipped"
)

// TaskStatus represents the status of a migration task (one per unique CID)
type TaskStatus string

const (
	// TaskPending represents a task waiting to be processed
	TaskPending TaskStatus = "pending"
	// TaskInProgress represents a task currently submitting a pin request
	TaskInProgress TaskStatus = "in_progress"
	// TaskPinned represents a successfully pinned task
	TaskPinned TaskStatus = "pinned"
	// TaskFailed represents a task that exhausted its attempts or was rejected
	TaskFailed TaskStatus = "failed"
)

// RunStatus represents the lifecycle state of a migration run
type RunStatus string

const (
	// RunRunning represents a run whose workers are still processing tasks
	RunRunning RunStatus = "running"
	// RunCompleted represents a run where every task reached a terminal state
	RunCompleted RunStatus = "completed"
	// RunAborted represents a run stopped early by a fatal failure or cancellation
	RunAborted RunStatus = "aborted"
)

// Topology classifies how a collection's assets map onto IPFS content
type Topology string

const (
	// TopologyIndividual means every asset resolves to its own CID
	TopologyIndividual Topology = "individual"
	// TopologyDirectory means all assets share one base CID (a folder CID)
	TopologyDirectory Topology = "directory"
	// TopologyMixed means some CIDs are shared and some are unique
	TopologyMixed Topology = "mixed"
)

// AddressRole identifies which on-chain address field an ARC-19 template points at
type AddressRole string

const (
	// RoleReserve is the reserve address field
	RoleReserve AddressRole = "reserve"
	// RoleManager is the manager address field
	RoleManager AddressRole = "manager"
	// RoleFreeze is the freeze address field
	RoleFreeze AddressRole = "freeze"
	// RoleClawback is the clawback address field
	RoleClawback AddressRole = "clawback"
)

// NormalizeRole maps a template field name to a known address role.
// Templates in the wild use both "freeze" and "freezer" for the freeze field.
func NormalizeRole(field string) (AddressRole, bool) {
	switch field {
	case "reserve":
		return RoleReserve, true
	case "manager":
		return RoleManager, true
	case "freeze", "freezer":
		return RoleFreeze, true
	case "clawback":
		return RoleClawback, true
	default:
		return "", false
	}
}

// PinState represents the provider-reported state of a pin
type PinState string

const (
	// PinStatePinned means the provider reports the content as pinned
	PinStatePinned PinState = "pinned"
	// PinStatePinning means the provider is actively retrieving the content
	PinStatePinning PinState = "pinning"
	// PinStateQueued means the pin request is accepted but not started
	PinStateQueued PinState = "queued"
	// PinStateFailed means the provider reports the pin as failed
	PinStateFailed PinState = "failed"
	// PinStateUnknown means the provider could not report a state for the CID
	PinStateUnknown PinState = "unknown"
)

// Accepted reports whether the state counts as a verified pin outcome.
// Queued and pinning states are accepted: the provider has taken ownership
// of the request even though retrieval has not completed.
func (s PinState) Accepted() bool {
	switch s {
	case PinStatePinned, PinStatePinning, PinStateQueued:
		return true
	default:
		return false
	}
}

// ErrorDetail carries a machine-checkable error kind plus a human-readable message
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
