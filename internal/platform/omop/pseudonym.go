package omop

import (
	"fmt"
	"hash/fnv"
)

// Pseudonymize replaces a real patient identifier with "P" followed by the
// 32-bit FNV-1a hash of its UTF-8 bytes in uppercase hex. The output is
// stable across runs and across pipelines using the same algorithm. It is a
// de-identification aid, not an access control: collisions are tolerated.
func Pseudonymize(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return fmt.Sprintf("P%08X", h.Sum32())
}
