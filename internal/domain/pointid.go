package domain

import (
	"crypto/md5"
	"fmt"
	"math/big"
)

var pointIDModulus = big.NewInt(1_000_000_000_000_000_000)

// PointID derives the index id of a passage from its file path and position.
// The value is md5("<path>_<index>") reduced modulo 10^18, so it is stable
// across runs and fits in a signed 64-bit integer.
func PointID(filePath string, chunkIndex int) uint64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", filePath, chunkIndex)))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, pointIDModulus).Uint64()
}
