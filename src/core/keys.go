package core

import (
	"fmt"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/clearvoice-app/clearvoice/src/record"
)

// replyKey identifies one send attempt: same role, same trimmed text, same
// record generation. Two taps on the same button hash identically; a retry
// after the record moved on does not.
func replyKey(role record.Role, trimmedMsg string, updatedAt time.Time) uint64 {
	return xxhash.Checksum64([]byte(fmt.Sprintf("%s\x00%s\x00%d", role, trimmedMsg, updatedAt.UnixNano())))
}
