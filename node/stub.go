package node

// Stub stands in for a node when running without one: transaction building
// works fully offline, only broadcast and height queries need a live chain.
type Stub struct {
	Height uint64
}

func (t *Stub) GetChainHeight() (uint64, error) {
	return t.Height, nil
}

func (t *Stub) Broadcast(transactionBytes []byte) error {
	return nil
}
