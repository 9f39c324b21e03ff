// Package translate converts between simulated vehicle state and MAVLink
// HIL messages. Every function is pure; callers own the returned messages.
package translate

import (
	"fmt"
	"math"
	"time"

	"github.com/skyhil/hilbridge/internal/diag"
)

// usec converts t to the MAVLink time_usec field. Times before the Unix
// epoch encode as zero.
func usec(t time.Time) uint64 {
	us := t.UnixMicro()
	if us < 0 {
		return 0
	}
	return uint64(us)
}

func fromUsec(us uint64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(us))
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func translationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", diag.ErrTranslation, fmt.Sprintf(format, args...))
}

// clampInt rounds v and limits it to [lo, hi].
func clampInt(v float64, lo, hi int64) int64 {
	r := int64(math.Round(v))
	if v >= float64(hi) || r > hi {
		return hi
	}
	if v <= float64(lo) || r < lo {
		return lo
	}
	return r
}
