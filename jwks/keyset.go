package jwks

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// SigningKey is a single public verification key published by the identity provider.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Use       string
	Key       crypto.PublicKey
}

// KeySet is an immutable snapshot of the provider's signing keys, indexed by key ID.
// A refresh replaces the whole set.
type KeySet struct {
	keys       map[string]SigningKey
	generation uint64
	fetchedAt  time.Time
}

// NewKeySet builds a key set from the given keys. Later duplicates of a key ID win.
func NewKeySet(keys ...SigningKey) *KeySet {
	m := make(map[string]SigningKey, len(keys))
	for _, k := range keys {
		m[k.KeyID] = k
	}
	return &KeySet{keys: m}
}

// Lookup returns the key with the given ID.
func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of keys in the set
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Generation is incremented every time the cache installs a freshly fetched set.
// A nil set is generation zero.
func (s *KeySet) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation
}

// FetchedAt returns when the set was installed in the cache.
func (s *KeySet) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// KeyIDs returns the IDs of all keys in the set, in no particular order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	return ids
}

// document is the wire shape of a JWKS response. Keys are decoded one at a time
// so a single unsupported entry does not poison the whole set.
type document struct {
	Keys []json.RawMessage `json:"keys"`
}

// ErrInvalidKeySet is returned when a JWKS document cannot be parsed.
var ErrInvalidKeySet = errors.New("invalid key set document")

// ParseKeySet decodes a JWKS document. Entries that are not public signing keys,
// that carry no key ID, or that use an unsupported key type are skipped.
func ParseKeySet(data []byte) (*KeySet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySet, err)
	}
	if doc.Keys == nil {
		return nil, fmt.Errorf("%w: missing keys member", ErrInvalidKeySet)
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			continue
		}
		if jwk.KeyID == "" || !jwk.Valid() || !jwk.IsPublic() {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		keys = append(keys, SigningKey{
			KeyID:     jwk.KeyID,
			Algorithm: jwk.Algorithm,
			Use:       jwk.Use,
			Key:       jwk.Key,
		})
	}

	return NewKeySet(keys...), nil
}
