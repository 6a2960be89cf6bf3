package index

import (
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

var (
	trustedValue   = []byte{0x01}
	untrustedValue = []byte{0x00}
)

// State persists the trust flag of every index of a container, keyed by
// index name. An index with no record is untrusted.
type State struct {
	table *storage.Table
}

// NewState binds a state table named name.
func NewState(s *storage.Store, name string) *State {
	return &State{table: s.Table(name, false)}
}

// IsTrusted reads the trust flag of the named index.
func (st *State) IsTrusted(r storage.Reader, indexName string) (bool, error) {
	v, err := r.Get(st.table, []byte(indexName), storage.LockNone)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "index: read state of %s", indexName)
	}
	return len(v) == 1 && v[0] == trustedValue[0], nil
}

// SetTrusted writes the trust flag of the named index.
func (st *State) SetTrusted(w storage.Writer, indexName string, trusted bool) error {
	v := untrustedValue
	if trusted {
		v = trustedValue
	}
	return errors.Wrapf(w.Put(st.table, []byte(indexName), v), "index: write state of %s", indexName)
}

// Remove deletes the state record of the named index.
func (st *State) Remove(w storage.Writer, indexName string) error {
	return errors.Wrapf(w.Delete(st.table, []byte(indexName)), "index: remove state of %s", indexName)
}

// Names returns the names of every index with a state record, in order.
func (st *State) Names(r storage.Reader) ([]string, error) {
	c, err := r.NewCursor(st.table, nil, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []string
	for ok := c.First(); ok; ok = c.Next() {
		out = append(out, string(c.Key()))
	}
	return out, errors.Wrap(c.Error(), "index: list state")
}
