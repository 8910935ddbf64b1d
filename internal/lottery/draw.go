package lottery

import (
	crand "crypto/rand"
	"errors"
	"math/big"
)

// DigitCount is how many distinct digits a guess and a draw hold.
const DigitCount = 3

var errInvalidRange = errors.New("invalid random range")

var drawRandomInt = secureRandomInt

// Numbers is an ordered set of distinct digits 0-9.
type Numbers [DigitCount]int

// Valid reports whether every digit is 0-9 and no digit repeats.
func (n Numbers) Valid() bool {
	var seen [10]bool
	for _, d := range n {
		if d < 0 || d > 9 || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// DrawNumbers picks DigitCount distinct digits uniformly without replacement.
func DrawNumbers() (Numbers, error) {
	pool := [10]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	var out Numbers
	// 部分 Fisher-Yates
	for i := 0; i < DigitCount; i++ {
		j, err := drawRandomInt(len(pool) - i)
		if err != nil {
			return Numbers{}, err
		}
		j += i
		pool[i], pool[j] = pool[j], pool[i]
		out[i] = pool[i]
	}
	return out, nil
}

// Matches counts guessed digits that appear anywhere in drawn.
func Matches(guess, drawn Numbers) int {
	var in [10]bool
	for _, d := range drawn {
		in[d] = true
	}
	n := 0
	for _, d := range guess {
		if d >= 0 && d <= 9 && in[d] {
			n++
		}
	}
	return n
}

var rewardTiers = [DigitCount + 1]int{0, 10, 100, 1000}

// Reward returns the exp paid for a match count. Tiers are exact.
func Reward(matches int) int {
	if matches < 0 || matches >= len(rewardTiers) {
		return 0
	}
	return rewardTiers[matches]
}

func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidRange
	}

	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
