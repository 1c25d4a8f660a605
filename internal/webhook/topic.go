package webhook

import "strings"

// Operation is the domain operation a delivery maps to.
type Operation int

const (
	OpUnknown Operation = iota
	OpOrderCreate
	OpOrderUpdate
	OpOrderDelete
	OpProductUpdate
)

// Topics handled by the reconciler.
const (
	TopicOrderCreate   = "orders/create"
	TopicOrderUpdate   = "orders/update"
	TopicOrderDelete   = "orders/delete"
	TopicProductUpdate = "products/update"
)

var topicOperations = map[string]Operation{
	TopicOrderCreate:   OpOrderCreate,
	TopicOrderUpdate:   OpOrderUpdate,
	TopicOrderDelete:   OpOrderDelete,
	TopicProductUpdate: OpProductUpdate,
}

// Classify maps a topic to its operation. Unrecognised topics yield OpUnknown.
func Classify(topic string) Operation {
	if op, ok := topicOperations[NormalizeTopic(topic)]; ok {
		return op
	}
	return OpUnknown
}

// NormalizeTopic lowercases a topic and strips surrounding whitespace and slashes.
func NormalizeTopic(topic string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(topic)), "/")
}

// IsOrder reports whether the operation targets orders.
func (o Operation) IsOrder() bool {
	return o == OpOrderCreate || o == OpOrderUpdate || o == OpOrderDelete
}

func (o Operation) String() string {
	switch o {
	case OpOrderCreate:
		return "order-create"
	case OpOrderUpdate:
		return "order-update"
	case OpOrderDelete:
		return "order-delete"
	case OpProductUpdate:
		return "product-update"
	default:
		return "unknown"
	}
}
