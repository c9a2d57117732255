package domain

// ContextBlock is one named unit of content destined for an agent's
// initial context. The host renders the collected blocks in order.
type ContextBlock struct {
	Name    string
	Content string
}
