package reports

// Bucket is one slice of a grouped aggregate
type Bucket struct {
	Key   string  `json:"key"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// Overview is the dashboard snapshot across all three ledgers. Empty
// datasets produce zeroed buckets, never errors.
type Overview struct {
	BookingsByStatus  []Bucket `json:"bookings_by_status"`
	BookingsByPayment []Bucket `json:"bookings_by_payment"`
	EarningsByStatus  []Bucket `json:"earnings_by_status"`
	EarningsByType    []Bucket `json:"earnings_by_type"`
	PayoutsByStatus   []Bucket `json:"payouts_by_status"`
	TotalRevenue      float64  `json:"total_revenue"`
	TotalNetEarnings  float64  `json:"total_net_earnings"`
	TotalPaidOut      float64  `json:"total_paid_out"`
}

// MonthlyTrend is one month of the rolling revenue/earnings trend
type MonthlyTrend struct {
	Month       string  `json:"month"`
	Bookings    int64   `json:"bookings"`
	Revenue     float64 `json:"revenue"`
	NetEarnings float64 `json:"net_earnings"`
}

// TopRoute is one pickup/dropoff pair ranked by booking volume
type TopRoute struct {
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
	Bookings       int64  `json:"bookings"`
}
