package database

// OrderStatus is the closed set of order states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusServed    OrderStatus = "SERVED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// NonTerminalStatuses is the set that keeps a table occupied.
var NonTerminalStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusServed,
}

// Valid reports whether s is a recognized order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusServed, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// allowedTransitions maps each non-terminal status to its reachable set.
// The caller drives transitions; any recognized target is reachable from
// a non-terminal state. Terminal states have no entry.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
		OrderStatusServed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusServed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusPending, OrderStatusConfirmed, OrderStatusReady,
		OrderStatusServed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusReady: {OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusServed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusServed: {OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusPaid, OrderStatusCancelled},
}

// CanTransition reports whether an order in state s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// SalesChannel distinguishes table service from counter sales.
type SalesChannel string

const (
	SalesChannelDineIn     SalesChannel = "DINE_IN"
	SalesChannelDirectSale SalesChannel = "DIRECT_SALE"
)

// Valid reports whether c is a recognized sales channel.
func (c SalesChannel) Valid() bool {
	return c == SalesChannelDineIn || c == SalesChannelDirectSale
}

// TableStatus is the occupancy state of a dining table.
type TableStatus string

const (
	TableStatusAvailable TableStatus = "AVAILABLE"
	TableStatusOccupied  TableStatus = "OCCUPIED"
)
