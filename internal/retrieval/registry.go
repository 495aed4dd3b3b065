package retrieval

import "sync"

// clientRegistry caches client handles per language code. It never caches results.
type clientRegistry struct {
	mu      sync.Mutex
	factory ClientFactory
	clients map[string]LanguageClient
}

func newClientRegistry(factory ClientFactory) *clientRegistry {
	return &clientRegistry{
		factory: factory,
		clients: make(map[string]LanguageClient),
	}
}

func (r *clientRegistry) get(language string) LanguageClient {
	code := normalizeLanguage(language)

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[code]; ok {
		return client
	}
	if r.factory == nil {
		return nil
	}
	client := r.factory(code)
	if client != nil {
		r.clients[code] = client
	}
	return client
}
