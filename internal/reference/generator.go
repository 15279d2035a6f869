package reference

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/smallbiznis/munitax/internal/config"
)

const (
	controlNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	controlNumberLength   = 10

	providerReferenceMin = 100000
	providerReferenceMax = 999999
)

// Generator produces candidate payment tokens. It never checks uniqueness;
// callers persist the token under a unique constraint and redraw on collision.
type Generator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	policy *config.PaymentPolicyHolder
}

func NewGenerator(src rand.Source, policy *config.PaymentPolicyHolder) *Generator {
	return &Generator{rnd: rand.New(src), policy: policy}
}

// NewSeededGenerator is deterministic for a given seed.
func NewSeededGenerator(seed uint64, policy *config.PaymentPolicyHolder) *Generator {
	return NewGenerator(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), policy)
}

// ProvideGenerator seeds a ChaCha8 stream from the OS entropy source.
func ProvideGenerator(policy *config.PaymentPolicyHolder) *Generator {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return NewGenerator(rand.NewChaCha8(seed), policy)
}

// ControlNumber returns prefix + 10 characters drawn from [A-Z0-9].
func (g *Generator) ControlNumber() string {
	prefix := g.policy.Get().ControlNumberPrefix

	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(len(prefix) + controlNumberLength)
	b.WriteString(prefix)
	for i := 0; i < controlNumberLength; i++ {
		b.WriteByte(controlNumberAlphabet[g.rnd.IntN(len(controlNumberAlphabet))])
	}
	return b.String()
}

// ProviderReference returns prefix + a six digit number. Collisions are tolerated.
func (g *Generator) ProviderReference() string {
	prefix := g.policy.Get().ProviderReferencePrefix

	g.mu.Lock()
	n := providerReferenceMin + g.rnd.IntN(providerReferenceMax-providerReferenceMin+1)
	g.mu.Unlock()

	return fmt.Sprintf("%s%06d", prefix, n)
}
