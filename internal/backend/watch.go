package backend

import (
	"github.com/KilimcininKorOglu/obaidx/internal/stream"
)

// Watch subscribes to the changes committed from now on that match f.
// A renamed subtree reports one OpModifyDN event per moved entry, and a
// subtree delete one OpDelete event per removed entry.
func (ec *EntryContainer) Watch(f stream.WatchFilter) (*stream.Subscriber, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	return ec.changes.Subscribe(f)
}

// WatchSince is Watch preceded by the buffered changes after token.
func (ec *EntryContainer) WatchSince(f stream.WatchFilter, token uint64) (*stream.Subscriber, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	return ec.changes.SubscribeSince(f, token)
}

// Unwatch ends a subscription and closes its channel.
func (ec *EntryContainer) Unwatch(id stream.SubscriberID) {
	ec.changes.Unsubscribe(id)
}

// ChangeToken returns the token of the last committed change.
func (ec *EntryContainer) ChangeToken() uint64 {
	return ec.changes.Token()
}
