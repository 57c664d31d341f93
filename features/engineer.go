package features

import "fmt"

// Engineer derives distance and time buckets for a single raw record.
func Engineer(r RawRecord) (EngineeredRecord, error) {
	ts, err := ParsePickup(r.PickupDatetime)
	if err != nil {
		return EngineeredRecord{}, err
	}
	b := BucketsFor(ts)
	return EngineeredRecord{
		FareAmount:       r.FareAmount,
		PickupLatitude:   r.PickupLatitude,
		PickupLongitude:  r.PickupLongitude,
		DropoffLatitude:  r.DropoffLatitude,
		DropoffLongitude: r.DropoffLongitude,
		PassengerCount:   r.PassengerCount,
		Distance:         HaversineDistance(r.PickupLatitude, r.PickupLongitude, r.DropoffLatitude, r.DropoffLongitude),
		PickupHour:       b.Hour,
		PickupWeekday:    b.Weekday,
		AmOrPm:           b.AmOrPm,
		PickupDatetime:   r.PickupDatetime,
	}, nil
}

// EngineerAll maps every raw record, preserving order. The first bad record
// aborts the whole batch.
func EngineerAll(raw []RawRecord) ([]EngineeredRecord, error) {
	out := make([]EngineeredRecord, len(raw))
	for i, r := range raw {
		e, err := Engineer(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out[i] = e
	}
	return out, nil
}

// Validate checks the categorical fields are inside their cardinalities and
// the distance is non-negative.
func (e EngineeredRecord) Validate() error {
	switch {
	case e.PickupHour < 0 || e.PickupHour >= HourCardinality:
		return fmt.Errorf("%w: pickup_hour %d out of range", ErrData, e.PickupHour)
	case e.PickupWeekday < 0 || e.PickupWeekday >= WeekdayCardinality:
		return fmt.Errorf("%w: pickup_weekday %d out of range", ErrData, e.PickupWeekday)
	case e.AmOrPm < 0 || e.AmOrPm >= AmOrPmCardinality:
		return fmt.Errorf("%w: am_or_pm %d out of range", ErrData, e.AmOrPm)
	case e.Distance < 0:
		return fmt.Errorf("%w: negative distance %f", ErrData, e.Distance)
	}
	return nil
}
