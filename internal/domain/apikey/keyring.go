package apikey

// Entry maps a stored credential hash to an identity name.
type Entry struct {
	Hash     string
	Identity string
}

// Keyring resolves raw credentials to identities. Immutable after
// construction, safe for concurrent use.
type Keyring struct {
	entries []Entry
}

// NewKeyring builds a keyring from configured entries.
func NewKeyring(entries []Entry) *Keyring {
	return &Keyring{entries: entries}
}

// Resolve verifies the raw credential against every entry and returns the
// matching identity. Iteration is required because Argon2id hashes are
// salted and cannot be looked up directly.
func (k *Keyring) Resolve(rawKey string) (string, bool) {
	if k == nil {
		return "", false
	}
	for _, e := range k.entries {
		match, err := Verify(rawKey, e.Hash)
		if err != nil {
			continue
		}
		if match {
			return e.Identity, true
		}
	}
	return "", false
}

// Empty reports whether the keyring has no entries.
func (k *Keyring) Empty() bool {
	return k == nil || len(k.entries) == 0
}
