package transform

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Blake2b256 is a Transform that produces a 32-byte blake2b-256 digest.
type Blake2b256 struct {
	h hash.Hash
}

// NewBlake2b256 returns an unregistered blake2b-256 transform, ready for
// Registry.Add.
func NewBlake2b256() *Blake2b256 {
	return &Blake2b256{}
}

func (b *Blake2b256) Name() string { return "blake2b-256" }

func (b *Blake2b256) Init() error {
	h, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	b.h = h
	return nil
}

func (b *Blake2b256) Update(p []byte) error {
	if b.h == nil {
		return errTransformNotInitialized
	}
	_, err := b.h.Write(p)
	return err
}

func (b *Blake2b256) Final() ([]byte, error) {
	if b.h == nil {
		return nil, errTransformNotInitialized
	}
	return b.h.Sum(nil), nil
}
