package features

import "errors"

// ErrData marks a fatal data error: unreadable source, malformed row or an
// unparseable timestamp. A load that hits it fails as a whole.
var ErrData = errors.New("data error")

// Categorical cardinalities of the derived time buckets.
const (
	WeekdayCardinality = 7
	HourCardinality    = 24
	AmOrPmCardinality  = 2
)

// RawRecord is one row of NYCTaxiFares.csv.
type RawRecord struct {
	FareAmount       float64 `csv:"fare_amount"`
	PickupDatetime   string  `csv:"pickup_datetime"`
	PickupLongitude  float64 `csv:"pickup_longitude"`
	PickupLatitude   float64 `csv:"pickup_latitude"`
	DropoffLongitude float64 `csv:"dropoff_longitude"`
	DropoffLatitude  float64 `csv:"dropoff_latitude"`
	PassengerCount   float64 `csv:"passenger_count"`
}

// RawColumns lists the header fields a raw file must carry.
var RawColumns = []string{
	"fare_amount", "pickup_datetime", "pickup_longitude", "pickup_latitude",
	"dropoff_longitude", "dropoff_latitude", "passenger_count",
}

// EngineeredRecord is a RawRecord plus its derived fields. Field order matches
// the TaxiFaresPrepared.csv header. PickupDatetime is kept in memory only.
type EngineeredRecord struct {
	FareAmount       float64 `csv:"fare_amount"`
	PickupLatitude   float64 `csv:"pickup_latitude"`
	PickupLongitude  float64 `csv:"pickup_longitude"`
	DropoffLatitude  float64 `csv:"dropoff_latitude"`
	DropoffLongitude float64 `csv:"dropoff_longitude"`
	PassengerCount   float64 `csv:"passenger_count"`
	Distance         float64 `csv:"distance"`
	PickupHour       int     `csv:"pickup_hour"`
	PickupWeekday    int     `csv:"pickup_weekday"`
	AmOrPm           int     `csv:"am_or_pm"`
	PickupDatetime   string  `csv:"-"`
}

// PreparedColumns is the header of TaxiFaresPrepared.csv.
var PreparedColumns = []string{
	"fare_amount", "pickup_latitude", "pickup_longitude", "dropoff_latitude",
	"dropoff_longitude", "passenger_count", "distance", "pickup_hour",
	"pickup_weekday", "am_or_pm",
}

// Field counts of the model inputs.
const (
	NumContinuous  = 6
	NumCategorical = 3
)

// ContinuousNames and CategoricalNames give the fixed order of the model inputs.
var (
	ContinuousNames  = [NumContinuous]string{"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude", "passenger_count", "distance"}
	CategoricalNames = [NumCategorical]string{"pickup_weekday", "pickup_hour", "am_or_pm"}
)

// Continuous returns the continuous inputs in ContinuousNames order.
func (e EngineeredRecord) Continuous() [NumContinuous]float64 {
	return [NumContinuous]float64{
		e.PickupLatitude, e.PickupLongitude,
		e.DropoffLatitude, e.DropoffLongitude,
		e.PassengerCount, e.Distance,
	}
}

// Categorical returns the categorical inputs in CategoricalNames order.
func (e EngineeredRecord) Categorical() [NumCategorical]int {
	return [NumCategorical]int{e.PickupWeekday, e.PickupHour, e.AmOrPm}
}

// Label is the regression target.
func (e EngineeredRecord) Label() float64 { return e.FareAmount }
