package sampling

import "math/rand/v2"

// NewStream returns the random stream for one batch of a run.
// Streams for different batches of the same seed are disjoint PCG sequences,
// so batches can run on any worker in any order and still see the same numbers.
func NewStream(seed uint64, batch int) *rand.Rand {
	return rand.New(rand.NewPCG(splitmix64(seed), splitmix64(seed^((uint64(batch)+1)*0x9e3779b97f4a7c15))))
}

// splitmix64 scrambles a seed so neighbouring seeds give unrelated streams
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
