package ports

import "github.com/mkalas/sessionkeeper/internal/domain"

// InjectionSink collects ordered context blocks for the host to render
// into an agent's initial context.
type InjectionSink interface {
	Append(block domain.ContextBlock)
}
