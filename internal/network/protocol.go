package network

import (
	"encoding/json"
	"errors"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Message types - Client → Server
const (
	MsgTypeAddItem          = "add_item"
	MsgTypeMoveItem         = "move_item"
	MsgTypeSplitItem        = "split_item"
	MsgTypeMergeInstances   = "merge_instances"
	MsgTypeSetPocketFilters = "set_pocket_filters"
	MsgTypeMergeAll         = "merge_all"
	MsgTypeAutoArrange      = "auto_arrange"
	MsgTypeAddPocket        = "add_pocket"
	MsgTypeSnapshot         = "snapshot"
	MsgTypeCatalog          = "catalog"
	MsgTypePing             = "ping"
)

// Message types - Server → Client
const (
	MsgTypeWelcome  = "welcome"
	MsgTypeResult   = "result"
	MsgTypeDiff     = "diff"
	MsgTypePerished = "perished"
	MsgTypeError    = "error"
	MsgTypePong     = "pong"
)

// Error codes
const (
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodePolicyRejected  = "policy_rejected"
	CodeNoCapacity      = "no_capacity"
	CodeInvalidMessage  = "invalid_message"
	CodeUnknownType     = "unknown_message_type"
	CodeInternal        = "internal"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// AddItemPayload asks for count units of item to be stored automatically
type AddItemPayload struct {
	Item  inventory.ItemID `json:"item"`
	Count int              `json:"count"`
}

// MoveItemPayload moves an instance. Without a position the move is automatic.
type MoveItemPayload struct {
	Instance inventory.InstanceID  `json:"instance"`
	From     inventory.ContainerID `json:"from"`
	To       inventory.ContainerID `json:"to"`
	Position *inventory.Point      `json:"position,omitempty"`
	Rotate   bool                  `json:"rotate,omitempty"`
}

// SplitItemPayload splits amount units off an instance
type SplitItemPayload struct {
	Container inventory.ContainerID `json:"container"`
	Instance  inventory.InstanceID  `json:"instance"`
	Amount    int                   `json:"amount"`
}

// MergeInstancesPayload moves as many units as fit from source into target
type MergeInstancesPayload struct {
	Source inventory.InstanceID `json:"source"`
	Target inventory.InstanceID `json:"target"`
}

// SetPocketFiltersPayload replaces the tag filters of a pocket
type SetPocketFiltersPayload struct {
	Pocket    int      `json:"pocket"`
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

// AddPocketPayload opens a pocket shaped by an item that provides one
type AddPocketPayload struct {
	Item inventory.ItemID `json:"item"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID string             `json:"player_id"`
	Username string             `json:"username"`
	Snapshot inventory.Snapshot `json:"snapshot"`
}

// ResultPayload answers one client intent
type ResultPayload struct {
	RequestID string         `json:"request_id,omitempty"`
	Intent    string         `json:"intent"`
	OK        bool           `json:"ok"`
	Error     *ErrorPayload  `json:"error,omitempty"`
	Data      interface{}    `json:"data,omitempty"`
	Diff      inventory.Diff `json:"diff"`
}

// DiffPayload pushes changes the client did not ask for, such as decay
type DiffPayload struct {
	Reason string         `json:"reason"`
	Diff   inventory.Diff `json:"diff"`
}

// PerishedPayload reports units lost to decay
type PerishedPayload struct {
	Instance inventory.InstanceID `json:"instance"`
	Item     inventory.ItemID     `json:"item"`
	Count    int                  `json:"count"`
}

// CatalogPayload lists the item catalog ordered by registry id
type CatalogPayload struct {
	Items []inventory.ItemDetails `json:"items"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode maps an inventory error onto a wire error code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, inventory.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, inventory.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, inventory.ErrPolicyRejected):
		return CodePolicyRejected
	case errors.Is(err, inventory.ErrNoCapacity):
		return CodeNoCapacity
	default:
		return CodeInternal
	}
}

// NewError builds an ErrorPayload from an inventory error
func NewError(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	return &ErrorPayload{Code: ErrorCode(err), Message: err.Error()}
}
