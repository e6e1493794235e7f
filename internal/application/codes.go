package application

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"

	"taskquest/internal/repository"
)

// CodeGenerator mints short alphanumeric codes that are unique among the
// currently valid codes of one kind.
type CodeGenerator struct {
	rand        io.Reader
	length      int
	maxAttempts int
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{
		rand:        rand.Reader,
		length:      codeLength,
		maxAttempts: codeMaxAttempts,
	}
}

func (g *CodeGenerator) random(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(g.rand, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

type codeCheck func(ctx context.Context, code string) (bool, error)
type codeClaim func(ctx context.Context, code string) error

// Mint generates prefix+random candidates until one is free and claimed.
// The random part widens once half the attempts have collided. A duplicate
// key reported by claim counts as a collision.
func (g *CodeGenerator) Mint(ctx context.Context, prefix string, exists codeCheck, claim codeClaim) (string, error) {
	return g.mint(ctx, prefix, g.length, exists, claim)
}

// MintInvite mints an unprefixed invite code that can never be mistaken for
// an admin or user code.
func (g *CodeGenerator) MintInvite(ctx context.Context, exists codeCheck, claim codeClaim) (string, error) {
	guarded := func(ctx context.Context, code string) (bool, error) {
		if strings.HasPrefix(code, AdminCodePrefix) || strings.HasPrefix(code, UserCodePrefix) {
			return true, nil
		}
		return exists(ctx, code)
	}
	return g.mint(ctx, "", inviteCodeLength, guarded, claim)
}

func (g *CodeGenerator) mint(ctx context.Context, prefix string, length int, exists codeCheck, claim codeClaim) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n := length
		if attempt >= g.maxAttempts/2 {
			n += codeWidenBy
		}
		body, err := g.random(n)
		if err != nil {
			return "", err
		}
		code := prefix + body

		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}

		if err := claim(ctx, code); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return "", err
		}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

func codeKind(code string) string {
	switch {
	case strings.HasPrefix(code, AdminCodePrefix):
		return CodeTypeAdmin
	case strings.HasPrefix(code, UserCodePrefix):
		return CodeTypeUser
	}
	return ""
}
