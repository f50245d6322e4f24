package transform

import (
	"errors"
	"hash"

	"golang.org/x/crypto/sha3"
)

var errTransformNotInitialized = errors.New("transform: Update/Final called before Init")

// SHA3_256 is a Transform that produces a 32-byte SHA3-256 digest.
type SHA3_256 struct {
	h hash.Hash
}

// NewSHA3_256 returns an unregistered SHA3-256 transform, ready for
// Registry.Add.
func NewSHA3_256() *SHA3_256 {
	return &SHA3_256{}
}

func (s *SHA3_256) Name() string { return "sha3-256" }

func (s *SHA3_256) Init() error {
	s.h = sha3.New256()
	return nil
}

func (s *SHA3_256) Update(p []byte) error {
	if s.h == nil {
		return errTransformNotInitialized
	}
	_, err := s.h.Write(p)
	return err
}

func (s *SHA3_256) Final() ([]byte, error) {
	if s.h == nil {
		return nil, errTransformNotInitialized
	}
	return s.h.Sum(nil), nil
}
