package auth

import (
	"fmt"
	"runtime"

	"HoneyHubUsers/internal/domain"
)

const (
	SaltLength = 24

	minIterations = 1
	maxIterations = 100
	minMemory     = 1 << 10
	maxMemory     = 1 << 30
	minKeyLength  = 16
	maxKeyLength  = 128
)

// HashingPolicy holds the Argon2id cost parameters. Memory is in bytes.
// Values are immutable once constructed.
type HashingPolicy struct {
	parallelism int
	iterations  int
	memory      int
	keyLength   int
}

func NewHashingPolicy(parallelism, iterations, memoryBytes, keyLength int) (HashingPolicy, error) {
	p := HashingPolicy{
		parallelism: parallelism,
		iterations:  iterations,
		memory:      memoryBytes,
		keyLength:   keyLength,
	}
	if err := p.Validate(); err != nil {
		return HashingPolicy{}, err
	}
	return p, nil
}

// DevelopmentPolicy is cheap enough for tests and local runs.
func DevelopmentPolicy() HashingPolicy {
	return HashingPolicy{parallelism: 1, iterations: 1, memory: 8 << 10, keyLength: 16}
}

func ProductionPolicy() HashingPolicy {
	return HashingPolicy{parallelism: min(runtime.NumCPU(), 255), iterations: 4, memory: 64 << 20, keyLength: 32}
}

func (p HashingPolicy) Parallelism() int { return p.parallelism }
func (p HashingPolicy) Iterations() int  { return p.iterations }
func (p HashingPolicy) MemoryBytes() int { return p.memory }
func (p HashingPolicy) KeyLength() int   { return p.keyLength }

func (p HashingPolicy) IsZero() bool { return p == HashingPolicy{} }

func (p HashingPolicy) Validate() error {
	maxParallelism := min(2*runtime.NumCPU(), 255)
	fields := map[string]string{}
	if p.parallelism < 1 || p.parallelism > maxParallelism {
		fields["parallelism"] = fmt.Sprintf("must be between 1 and %d", maxParallelism)
	}
	if p.iterations < minIterations || p.iterations > maxIterations {
		fields["iterations"] = fmt.Sprintf("must be between %d and %d", minIterations, maxIterations)
	}
	if p.memory < minMemory || p.memory > maxMemory {
		fields["memory"] = fmt.Sprintf("must be between %d and %d bytes", minMemory, maxMemory)
	}
	if p.keyLength < minKeyLength || p.keyLength > maxKeyLength {
		fields["key_length"] = fmt.Sprintf("must be between %d and %d bytes", minKeyLength, maxKeyLength)
	}
	if len(fields) > 0 {
		return fmt.Errorf("hashing policy: %w", domain.NewValidationError(fields))
	}
	return nil
}

func (p HashingPolicy) String() string {
	return fmt.Sprintf("argon2id(p=%d,t=%d,m=%dKiB,len=%d)", p.parallelism, p.iterations, p.memory>>10, p.keyLength)
}

func (p HashingPolicy) argon2Memory() uint32 { return uint32(p.memory >> 10) }
