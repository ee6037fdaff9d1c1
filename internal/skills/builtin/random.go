package builtin

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilohq/kilo/internal/kiloerr"
)

const (
	passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*-_=+"
	minPasswordLen  = 8
	maxPasswordLen  = 128
	defaultPassword = 16
)

var (
	randomQuery  = regexp.MustCompile(`\b(generate|give me|create|make)\b.*\b(uuid|guid|password|random number|random int)\b|\brandom number between\b|\buuid\b`)
	rangeExpr    = regexp.MustCompile(`between\s+(-?\d+)\s+and\s+(-?\d+)`)
	lengthExpr   = regexp.MustCompile(`(\d+)[\s-]*(?:character|char|digit)`)
	passwordWord = regexp.MustCompile(`\bpassword\b`)
	uuidWord     = regexp.MustCompile(`\b(uuid|guid)\b`)
)

type randomHandler struct{}

func newRandomHandler() *randomHandler { return &randomHandler{} }

func (h *randomHandler) ID() string { return "builtin-random" }

func (h *randomHandler) Matches(message string) bool {
	return randomQuery.MatchString(message)
}

func (h *randomHandler) Handle(message string, _ time.Time) (*Response, error) {
	var content string
	switch {
	case uuidWord.MatchString(message):
		content = fmt.Sprintf("Here's a UUID: **%s**", uuid.NewString())

	case passwordWord.MatchString(message):
		length := defaultPassword
		if m := lengthExpr.FindStringSubmatch(message); m != nil {
			length, _ = strconv.Atoi(m[1])
		}
		if length < minPasswordLen {
			length = minPasswordLen
		}
		if length > maxPasswordLen {
			length = maxPasswordLen
		}
		pw, err := randomPassword(length)
		if err != nil {
			return nil, err
		}
		content = fmt.Sprintf("Here's a %d-character password: `%s`", length, pw)

	default:
		lo, hi := int64(1), int64(100)
		if m := rangeExpr.FindStringSubmatch(message); m != nil {
			lo, _ = strconv.ParseInt(m[1], 10, 64)
			hi, _ = strconv.ParseInt(m[2], 10, 64)
			if lo > hi {
				lo, hi = hi, lo
			}
		}
		n, err := randomInt(lo, hi)
		if err != nil {
			return nil, err
		}
		content = fmt.Sprintf("Your random number between %d and %d: **%d**", lo, hi, n)
	}

	return &Response{
		Content: content,
		SkillID: h.ID(),
		SuggestedActions: []string{
			"Generate a UUID",
			"Random number between 1 and 100",
		},
	}, nil
}

// randomInt draws an unbiased integer in [lo, hi] using rejection sampling
// over crypto/rand.
func randomInt(lo, hi int64) (int64, error) {
	span := uint64(hi-lo) + 1
	var buf [8]byte
	if span == 0 {
		// [MinInt64, MaxInt64]: the span covers all of uint64, so any
		// draw is already unbiased.
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, kiloerr.Wrap(err, kiloerr.CodeInternal, "random source")
		}
		return int64(binary.BigEndian.Uint64(buf[:])), nil
	}
	// Largest multiple of span that fits in a uint64; draws above it are
	// rejected to avoid modulo bias.
	limit := ^uint64(0) - ^uint64(0)%span
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, kiloerr.Wrap(err, kiloerr.CodeInternal, "random source")
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return lo + int64(v%span), nil
		}
	}
}

func randomPassword(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		idx, err := randomInt(0, int64(len(passwordCharset)-1))
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[idx]
	}
	return string(out), nil
}
