package features

import (
	"fmt"
	"time"

	// embeds the zone database so America/New_York resolves on minimal images
	_ "time/tzdata"
)

// PickupLayout is the only accepted pickup_datetime format.
const PickupLayout = "2006-01-02 15:04:05 UTC"

// TargetZone is the zone hours and weekdays are derived in.
const TargetZone = "America/New_York"

var targetLocation = mustLoadLocation(TargetZone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// TimeBuckets holds the categorical fields derived from a pickup timestamp.
type TimeBuckets struct {
	Hour    int // 0-23, local time
	Weekday int // 0 = Monday ... 6 = Sunday
	AmOrPm  int // 1 when Hour >= 12
}

// matchesPickupLayout reports whether s is exactly
// dddd-dd-dd dd:dd:dd UTC. time.Parse alone also takes single-digit hours
// and fractional seconds.
func matchesPickupLayout(s string) bool {
	if len(s) != len(PickupLayout) {
		return false
	}
	for i := 0; i < len(s); i++ {
		l := PickupLayout[i]
		if l >= '0' && l <= '9' {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		} else if s[i] != l {
			return false
		}
	}
	return true
}

// ParsePickup parses a pickup_datetime string as UTC. Only the exact
// PickupLayout form is accepted.
func ParsePickup(s string) (time.Time, error) {
	if !matchesPickupLayout(s) {
		return time.Time{}, fmt.Errorf("%w: pickup_datetime %q does not match %q", ErrData, s, PickupLayout)
	}
	t, err := time.ParseInLocation(PickupLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: pickup_datetime %q: %v", ErrData, s, err)
	}
	return t, nil
}

// BucketsFor converts t to the target zone and derives the time buckets.
func BucketsFor(t time.Time) TimeBuckets {
	local := t.In(targetLocation)
	hour := local.Hour()
	b := TimeBuckets{
		Hour:    hour,
		Weekday: (int(local.Weekday()) + 6) % 7,
	}
	if hour >= 12 {
		b.AmOrPm = 1
	}
	return b
}
