package counters

// Regressed lists the counters that went backwards between prev and cur.
// Lifetime counters only grow, so a decrease points at a device swap, a
// reset or a misread report. Fields missing on either side are skipped.
func Regressed(prev, cur Snapshot) []string {
	var fields []string
	check := func(name string, a, b *int) {
		if a != nil && b != nil && *b < *a {
			fields = append(fields, name)
		}
	}
	check("bw_a3", prev.BWA3, cur.BWA3)
	check("bw_a4", prev.BWA4, cur.BWA4)
	check("color_a3", prev.ColorA3, cur.ColorA3)
	check("color_a4", prev.ColorA4, cur.ColorA4)
	if prev.TotalPages > 0 && cur.TotalPages < prev.TotalPages {
		fields = append(fields, "total_pages")
	}
	return fields
}
