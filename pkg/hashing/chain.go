package hashing

// ChainLink is one element of a hash chain.
type ChainLink struct {
	PrevHash string
	Hash     string
	Payload  any
}

// ChainHash binds v to the previous link: sha256(prev || canonical(v)).
// The first link of a chain uses an empty prev.
func ChainHash(prev string, v any) (string, error) {
	c, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(append([]byte(prev), c...)), nil
}

// VerifyChain returns the index of the first link that does not follow from
// its predecessor, or -1 when the whole chain is intact.
func VerifyChain(links []ChainLink) int {
	for i, l := range links {
		if i > 0 && l.PrevHash != links[i-1].Hash {
			return i
		}
		h, err := ChainHash(l.PrevHash, l.Payload)
		if err != nil || h != l.Hash {
			return i
		}
	}
	return -1
}
