package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// SimulatedSubmitter records mandates instead of sending them to a chain.
// The returned transaction id is derived from the mandate signing payload.
type SimulatedSubmitter struct {
	mu        sync.Mutex
	submitted []*mandate.Mandate
	err       error
}

// NewSimulatedSubmitter creates an empty simulated ledger
func NewSimulatedSubmitter() *SimulatedSubmitter {
	return &SimulatedSubmitter{}
}

// FailWith makes every later Submit return err
func (s *SimulatedSubmitter) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, m *mandate.Mandate) (string, error) {
	if !m.Signed() {
		return "", mandate.ErrUnsigned
	}
	payload, err := m.SigningPayload()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.submitted = append(s.submitted, m)

	hash := crypto.Keccak256Hash(payload).Hex()
	return fmt.Sprintf("0xsimulated_%s", strings.TrimPrefix(hash, "0x")[:16]), nil
}

// Submitted returns every mandate accepted so far
func (s *SimulatedSubmitter) Submitted() []*mandate.Mandate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mandate.Mandate(nil), s.submitted...)
}
