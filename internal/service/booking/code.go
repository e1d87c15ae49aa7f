package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	// largest multiple of len(codeAlphabet) that fits in a byte
	codeByteLimit = 252
)

// CodeGenerator issues PREFIX-YEAR-XXXXXX reservation codes.
type CodeGenerator struct {
	prefix   string
	attempts int
	random   io.Reader
	exists   func(ctx context.Context, code string) (bool, error)
}

func NewCodeGenerator(prefix string, attempts int, exists func(ctx context.Context, code string) (bool, error)) *CodeGenerator {
	return &CodeGenerator{prefix: prefix, attempts: attempts, random: rand.Reader, exists: exists}
}

// Next returns a code unused in storage and absent from reserved. It gives up
// with ErrGenerationExhausted after the configured number of collisions.
func (g *CodeGenerator) Next(ctx context.Context, now time.Time, reserved map[string]bool) (string, error) {
	for i := 0; i < g.attempts; i++ {
		suffix, err := g.randomSuffix()
		if err != nil {
			return "", err
		}
		code := g.prefix + "-" + strconv.Itoa(now.Year()) + "-" + suffix
		if reserved[code] {
			continue
		}
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrGenerationExhausted, g.attempts)
}

func (g *CodeGenerator) randomSuffix() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= codeByteLimit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}
