package yacht

import "math/rand/v2"

// DiceCount is the number of dice in a hand.
const DiceCount = 5

type Dice [DiceCount]int

type Hand string

const (
	HandYacht         Hand = "yacht"
	HandFourKind      Hand = "four_of_a_kind"
	HandFullHouse     Hand = "full_house"
	HandThreeKind     Hand = "three_of_a_kind"
	HandTwoPair       Hand = "two_pair"
	HandOnePair       Hand = "one_pair"
	HandSmallStraight Hand = "small_straight"
	HandLargeStraight Hand = "large_straight"
	HandTop           Hand = "top"
)

var handScores = map[Hand]int{
	HandYacht:         150,
	HandFourKind:      50,
	HandFullHouse:     60,
	HandThreeKind:     40,
	HandTwoPair:       30,
	HandOnePair:       20,
	HandSmallStraight: 70,
	HandLargeStraight: 70,
	HandTop:           10,
}

// Score returns the points for h.
func (h Hand) Score() int {
	return handScores[h]
}

var rollDie = func() int {
	return rand.IntN(6) + 1
}

func rollAll() Dice {
	var d Dice
	for i := range d {
		d[i] = rollDie()
	}
	return d
}

// Classify returns the best hand for d, checked in precedence order.
func Classify(d Dice) Hand {
	var faces [7]int
	for _, v := range d {
		if v >= 1 && v <= 6 {
			faces[v]++
		}
	}

	maxKind, pairs, triple := 0, 0, false
	for v := 1; v <= 6; v++ {
		c := faces[v]
		maxKind = max(maxKind, c)
		switch c {
		case 2:
			pairs++
		case 3:
			triple = true
		}
	}

	switch {
	case maxKind == 5:
		return HandYacht
	case maxKind == 4:
		return HandFourKind
	case triple && pairs == 1:
		return HandFullHouse
	case triple:
		return HandThreeKind
	case pairs == 2:
		return HandTwoPair
	case pairs == 1:
		return HandOnePair
	case run(faces, 1):
		return HandSmallStraight
	case run(faces, 2):
		return HandLargeStraight
	}
	return HandTop
}

// run reports whether faces hold exactly one of each value from start to start+4.
func run(faces [7]int, start int) bool {
	for v := start; v < start+DiceCount; v++ {
		if faces[v] != 1 {
			return false
		}
	}
	return true
}
