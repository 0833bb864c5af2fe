package web

import "sync"

// Preview holds the most recent encoded preview frame.
type Preview struct {
	mu   sync.Mutex
	jpeg []byte
	seq  uint64
}

// NewPreview creates an empty Preview.
func NewPreview() *Preview {
	return &Preview{}
}

// Set replaces the current frame. p must not be modified afterwards.
func (p *Preview) Set(jpeg []byte) {
	p.mu.Lock()
	p.jpeg = jpeg
	p.seq++
	p.mu.Unlock()
}

// Latest returns the current frame and its sequence number, which changes
// on every Set. The frame is nil until the first Set.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpeg, p.seq
}
