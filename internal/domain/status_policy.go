package domain

// StatusPolicy решает, допустим ли переход статуса при ручном обновлении.
type StatusPolicy interface {
	Allowed(from, to OrderStatus) bool
	Name() string
}

// LooseStatusPolicy разрешает любой переход между допустимыми статусами.
type LooseStatusPolicy struct{}

func (LooseStatusPolicy) Allowed(from, to OrderStatus) bool {
	return from.Valid() && to.Valid()
}

func (LooseStatusPolicy) Name() string { return "loose" }

// StrictStatusPolicy следует жизненному циклу
// pending -> confirmed -> shipped -> delivered, отмена только до отгрузки.
type StrictStatusPolicy struct{}

var strictTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (StrictStatusPolicy) Allowed(from, to OrderStatus) bool {
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (StrictStatusPolicy) Name() string { return "strict" }

// PolicyFor возвращает политику по флагу строгих переходов.
func PolicyFor(strict bool) StatusPolicy {
	if strict {
		return StrictStatusPolicy{}
	}
	return LooseStatusPolicy{}
}
