// Package jumphash implements the Lamping-Veach jump consistent hash.
//
// Jump hash maps a 64-bit key and a bucket count to a bucket index in
// O(log n) time with no per-bucket state, which makes it a good fit for
// choosing a key's owner from a sorted peer list.
package jumphash

const jump = 1 << 31

// Hash returns a bucket index in [0, buckets) for key. Successive calls with
// the same key and a shrinking bucket count redistribute only the keys that
// belonged to removed buckets. Returns 0 when buckets < 1; callers must guard
// against empty bucket sets.
func Hash(key uint64, buckets int) int {
	if buckets < 1 {
		return 0
	}
	var b int64 = -1
	var j int64
	for j < int64(buckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (jump / float64((key>>33)+1)))
	}
	return int(b)
}
