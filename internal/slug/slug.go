// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug generates the short random public identifiers used in
// player URLs and checks them for collisions.
package slug

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// Length is the number of characters in a generated slug.
	Length = 6

	// MaxAttempts bounds the collision retry loop.
	MaxAttempts = 10

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrExhausted is returned when every attempt produced a slug already in use.
var ErrExhausted = errors.New("slug: no free value found")

// Random returns a random slug of n characters drawn from [a-zA-Z0-9].
func Random(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("slug random: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// Generator produces slugs. Random with Length is the default; tests swap
// in deterministic sequences to force collisions.
type Generator func() (string, error)

// Default returns a Generator producing Length-character random slugs.
func Default() Generator {
	return func() (string, error) { return Random(Length) }
}

// Unique draws slugs from gen until taken reports one as free, giving up
// after attempts tries.
func Unique(ctx context.Context, gen Generator, taken func(context.Context, string) (bool, error), attempts int) (string, error) {
	for i := 0; i < attempts; i++ {
		s, err := gen()
		if err != nil {
			return "", err
		}
		used, err := taken(ctx, s)
		if err != nil {
			return "", fmt.Errorf("slug check: %w", err)
		}
		if !used {
			return s, nil
		}
	}
	return "", ErrExhausted
}

// Valid reports whether s has the shape of a generated slug. The player
// route uses it to reject obviously bogus paths before touching the store.
func Valid(s string) bool {
	if s == "" || len(s) > 50 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return false
		}
	}
	return true
}
