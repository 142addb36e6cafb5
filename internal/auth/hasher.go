package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMemoryBudget applies when HasherOpts leaves MemoryBudget unset.
const DefaultMemoryBudget int64 = 512 << 20

type HasherOpts struct {
	// MemoryBudget caps the bytes all in-flight hashes may use together.
	MemoryBudget int64
	// MaxConcurrent overrides the budget-derived limit when > 0.
	MaxConcurrent int64
	// Observe receives the duration of every hash or verify call.
	Observe func(op string, d time.Duration)
}

// Hasher bounds concurrent Argon2id invocations so a burst of sign-ups cannot
// exhaust process memory.
type Hasher struct {
	policy   HashingPolicy
	sem      *semaphore.Weighted
	capacity int64
	observe  func(op string, d time.Duration)
}

func NewHasher(policy HashingPolicy, opts HasherOpts) (*Hasher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	capacity := opts.MaxConcurrent
	if capacity <= 0 {
		budget := opts.MemoryBudget
		if budget <= 0 {
			budget = DefaultMemoryBudget
		}
		capacity = budget / int64(policy.memory)
	}
	if capacity < 1 {
		capacity = 1
	}

	return &Hasher{
		policy:   policy,
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		observe:  opts.Observe,
	}, nil
}

func (h *Hasher) Policy() HashingPolicy { return h.policy }
func (h *Hasher) Capacity() int64       { return h.capacity }

// Hash salts and hashes password, returning the "salt:hash" credential.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	start := time.Now()
	salt := CreateSalt()
	key, err := HashPassword(password, salt, h.policy)
	h.record("hash", start)
	if err != nil {
		return "", err
	}
	return EncodeCredential(salt, key), nil
}

func (h *Hasher) Verify(ctx context.Context, password, stored string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	start := time.Now()
	ok := VerifyCredential(password, stored, h.policy)
	h.record("verify", start)
	return ok, nil
}

func (h *Hasher) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for hashing slot: %w", err)
	}
	return nil
}

func (h *Hasher) record(op string, start time.Time) {
	if h.observe != nil {
		h.observe(op, time.Since(start))
	}
}
