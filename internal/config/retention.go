package config

// MaxAgeDays is the longest of Days, Weeks and Months expressed in days.
// Zero disables age-based pruning.
func (r RetentionConfig) MaxAgeDays() int {
	days := r.Days
	if r.Weeks*7 > days {
		days = r.Weeks * 7
	}
	if r.Months*30 > days {
		days = r.Months * 30
	}
	if days < 0 {
		return 0
	}
	return days
}

func (r RetentionConfig) Enabled() bool {
	return r.MaxAgeDays() > 0
}
