package order

import "math/rand"

// Side identifies which target a trial cues.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "Left"
	}
	return "Right"
}

// Random picks a side uniformly at random.
func Random(rng *rand.Rand) Side {
	if rng.Intn(2) == 0 {
		return Left
	}
	return Right
}

// Generate produces the side assignment for a whole run of n trials.
//
// With balancing disabled (or n <= 0) it returns nil and the caller
// falls back to a uniform random side per trial. With balancing
// enabled the result has length n and contains exactly n/2 of one
// side and n-n/2 of the other; for odd n the extra trial goes to a
// uniformly random side so no side is systematically favoured across
// runs. Only the ordering is random: the label counts are fixed
// before the shuffle.
func Generate(n int, balanced bool, rng *rand.Rand) []Side {
	if !balanced || n <= 0 {
		return nil
	}

	leftCount := n / 2
	rightCount := n - leftCount
	if n%2 == 1 && rng.Intn(2) == 0 {
		leftCount, rightCount = rightCount, leftCount
	}

	seq := make([]Side, 0, n)
	for i := 0; i < leftCount; i++ {
		seq = append(seq, Left)
	}
	for i := 0; i < rightCount; i++ {
		seq = append(seq, Right)
	}

	// Fisher-Yates
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		seq[i], seq[j] = seq[j], seq[i]
	}

	return seq
}
