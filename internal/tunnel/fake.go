package tunnel

import "context"

// Fake is a Controller for tests. It records the last desired peer set and
// counts calls; errors are injectable.
type Fake struct {
	Peers       []PeerSpec
	SyncCalls   int
	ReloadCalls int
	SyncErr     error
	ReloadErr   error
}

var _ Controller = (*Fake)(nil)

func (f *Fake) SyncPeers(_ context.Context, desired []PeerSpec) error {
	f.SyncCalls++
	if f.SyncErr != nil {
		return f.SyncErr
	}
	f.Peers = append([]PeerSpec(nil), desired...)
	return nil
}

func (f *Fake) Reload(_ context.Context) error {
	f.ReloadCalls++
	return f.ReloadErr
}
