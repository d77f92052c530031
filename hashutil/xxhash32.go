package hashutil

import "encoding/binary"

// XXH32Sum implements the XXH32 digest (32-bit variant of xxHash),
// the algorithm original_source/src/lib/xxhash32.cc wraps. No pack
// example provides this exact digest (cespare/xxhash/v2 implements the
// 64-bit variant, a different algorithm with a different output — see
// DESIGN.md), so it's written out by hand from the public algorithm
// description rather than imported.
func XXH32Sum(input []byte, seed uint32) uint32 {
	const (
		prime1 = 2654435761
		prime2 = 2246822519
		prime3 = 3266489917
		prime4 = 668265263
		prime5 = 374761393
	)

	var h32 uint32
	n := len(input)
	i := 0

	if n >= 16 {
		v1 := seed + prime1 + prime2
		v2 := seed + prime2
		v3 := seed
		v4 := seed - prime1

		for ; i+16 <= n; i += 16 {
			v1 = round32(v1, binary.LittleEndian.Uint32(input[i:]))
			v2 = round32(v2, binary.LittleEndian.Uint32(input[i+4:]))
			v3 = round32(v3, binary.LittleEndian.Uint32(input[i+8:]))
			v4 = round32(v4, binary.LittleEndian.Uint32(input[i+12:]))
		}
		h32 = rotl32(v1, 1) + rotl32(v2, 7) + rotl32(v3, 12) + rotl32(v4, 18)
	} else {
		h32 = seed + prime5
	}

	h32 += uint32(n)

	for ; i+4 <= n; i += 4 {
		h32 += binary.LittleEndian.Uint32(input[i:]) * prime3
		h32 = rotl32(h32, 17) * prime4
	}
	for ; i < n; i++ {
		h32 += uint32(input[i]) * prime5
		h32 = rotl32(h32, 11) * prime1
	}

	h32 ^= h32 >> 15
	h32 *= prime2
	h32 ^= h32 >> 13
	h32 *= prime3
	h32 ^= h32 >> 16

	return h32
}

func round32(acc, input uint32) uint32 {
	const (
		prime1 = 2654435761
		prime2 = 2246822519
	)
	acc += input * prime2
	acc = rotl32(acc, 13)
	acc *= prime1
	return acc
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}
