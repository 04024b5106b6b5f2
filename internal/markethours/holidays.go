package markethours

import "time"

// NSE trading holidays. Source: NSE India official holiday lists; entries
// marked tentative depend on the lunar calendar.
var nseHolidayDates = []struct {
	year  int
	month time.Month
	day   int
}{
	{2026, time.January, 26},  // Republic Day
	{2026, time.February, 17}, // Mahashivratri (tentative)
	{2026, time.March, 14},    // Holi
	{2026, time.March, 31},    // Id-ul-Fitr (tentative)
	{2026, time.April, 2},     // Ram Navami (tentative)
	{2026, time.April, 6},     // Mahavir Jayanti
	{2026, time.April, 10},    // Good Friday
	{2026, time.April, 14},    // Dr. Ambedkar Jayanti
	{2026, time.May, 1},       // Maharashtra Day
	{2026, time.June, 7},      // Bakrid (tentative)
	{2026, time.July, 6},      // Muharram (tentative)
	{2026, time.August, 15},   // Independence Day
	{2026, time.August, 16},   // Janmashtami (tentative)
	{2026, time.September, 5}, // Milad-un-Nabi (tentative)
	{2026, time.October, 2},   // Mahatma Gandhi Jayanti
	{2026, time.October, 20},  // Dussehra
	{2026, time.October, 21},  // Dussehra (tentative)
	{2026, time.November, 5},  // Diwali Lakshmi Puja (tentative)
	{2026, time.November, 6},  // Diwali Balipratipada (tentative)
	{2026, time.November, 7},  // Bhai Dooj (tentative)
	{2026, time.November, 19}, // Guru Nanak Jayanti
	{2026, time.December, 25}, // Christmas
}

func nseHolidays() map[string]bool {
	set := make(map[string]bool, len(nseHolidayDates))
	for _, h := range nseHolidayDates {
		set[time.Date(h.year, h.month, h.day, 0, 0, 0, 0, IST).Format("2006-01-02")] = true
	}
	return set
}
