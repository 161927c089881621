package gateway

import (
	"errors"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

var ErrGatewayNotSupported = errors.New("gateway is not supported")

type Registry struct {
	adapters map[types.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	items := make(map[types.Gateway]Adapter, len(adapters))
	for _, a := range adapters {
		items[a.Gateway()] = a
	}
	return &Registry{adapters: items}
}

func (r *Registry) Get(gw types.Gateway) (Adapter, error) {
	adapter, ok := r.adapters[gw]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return adapter, nil
}
