package goal

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrForeignSession is returned when restoring keys written by another
	// analysis session.
	ErrForeignSession = errors.New("goal key belongs to another session")
	// ErrUnresolvedKey is returned when a key names a definition or use the
	// registry does not know.
	ErrUnresolvedKey = errors.New("goal key does not resolve")
)

// StoredKey is the persisted form of a goal. Definitions and uses are kept
// as IDs and resolved through the registry when restored.
type StoredKey struct {
	Session string `msgpack:"session" json:"session"`
	Type    Type   `msgpack:"type" json:"type"`
	DefID   int    `msgpack:"def_id" json:"def_id"`
	UseID   int    `msgpack:"use_id" json:"use_id"`
}

// Store returns the persisted form of goals for session.
func Store(session string, goals []*Goal) []StoredKey {
	r := make([]StoredKey, 0, len(goals))
	for _, g := range goals {
		k := g.Key()
		r = append(r, StoredKey{Session: session, Type: g.Type, DefID: k.DefID, UseID: k.UseID})
	}
	return r
}

// EncodeKeys writes keys to w as msgpack.
func EncodeKeys(w io.Writer, keys []StoredKey) error {
	if err := msgpack.NewEncoder(w).Encode(keys); err != nil {
		return fmt.Errorf("failed to encode goal keys: %w", err)
	}
	return nil
}

// DecodeKeys reads keys written by EncodeKeys.
func DecodeKeys(r io.Reader) ([]StoredKey, error) {
	var keys []StoredKey
	if err := msgpack.NewDecoder(r).Decode(&keys); err != nil {
		return nil, fmt.Errorf("failed to decode goal keys: %w", err)
	}
	return keys, nil
}

// Restore resolves keys of session back into goals. Keys already in the
// catalog yield the catalog's goal; the others are recreated and added in
// key order under one lock.
func (c *Catalog) Restore(session string, keys []StoredKey) ([]*Goal, error) {
	r := make([]*Goal, 0, len(keys))
	var missing []*Goal
	seen := make(map[StoredKey]*Goal, len(keys))
	for _, k := range keys {
		if k.Session != session {
			return nil, fmt.Errorf("%w: %s (current %s)", ErrForeignSession, k.Session, session)
		}
		if g, ok := seen[k]; ok {
			r = append(r, g)
			continue
		}
		g, known, err := c.resolve(k)
		if err != nil {
			return nil, err
		}
		if !known {
			missing = append(missing, g)
		}
		seen[k] = g
		r = append(r, g)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range missing {
		c.register(g)
	}
	return r, nil
}

func (c *Catalog) resolve(k StoredKey) (*Goal, bool, error) {
	if k.Type == TypeParameter {
		if g := c.LookupParameter(k.UseID); g != nil {
			return g, true, nil
		}
		use, ok := c.reg.UseByID(k.UseID)
		if !ok {
			return nil, false, fmt.Errorf("%w: use %d", ErrUnresolvedKey, k.UseID)
		}
		g, err := NewParameter(use)
		return g, false, err
	}
	if g := c.Lookup(k.DefID, k.UseID); g != nil {
		return g, true, nil
	}
	def, ok := c.reg.DefinitionByID(k.DefID)
	if !ok {
		return nil, false, fmt.Errorf("%w: definition %d", ErrUnresolvedKey, k.DefID)
	}
	use, ok := c.reg.UseByID(k.UseID)
	if !ok {
		return nil, false, fmt.Errorf("%w: use %d", ErrUnresolvedKey, k.UseID)
	}
	g, err := New(def, use, k.Type)
	return g, false, err
}
