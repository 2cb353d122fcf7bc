package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[string]PaymentProvider
}

func NewRegistry(providers ...PaymentProvider) *Registry {
	items := make(map[string]PaymentProvider, len(providers))
	for _, p := range providers {
		items[strings.ToLower(p.Name())] = p
	}
	return &Registry{providers: items}
}

func (r *Registry) Get(name string) (PaymentProvider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return p, nil
}
