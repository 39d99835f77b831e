package domain

import "time"

// Overlaps reports whether the half-open date ranges [aIn, aOut) and
// [bIn, bOut) intersect. A checkout equal to another check-in is not an
// overlap, so back-to-back stays always fit.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && bIn.Before(aOut)
}

// Nights returns the number of occupied nights in [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Hours() / 24)
}

// FirstConflict returns the first reservation in existing that is active and
// overlaps [checkIn, checkOut), or nil. This is the availability check; the
// result is a snapshot and only the store's transactional re-check is binding.
func FirstConflict(existing []Reservation, checkIn, checkOut time.Time) *Reservation {
	for i := range existing {
		r := &existing[i]
		if r.Active() && Overlaps(checkIn, checkOut, r.CheckIn, r.CheckOut) {
			return r
		}
	}
	return nil
}
