// Package counters turns vendor page-counter fields into one canonical
// snapshot.
package counters

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// ErrEmptyCounters means the report carried no usable page counters.
var ErrEmptyCounters = errors.New("no valid page counters")

// Raw holds the agent's counter fields. nil means absent or unparseable.
type Raw struct {
	Total   *int
	BWA3    *int
	BWA4    *int
	ColorA3 *int
	ColorA4 *int
	Color   *int
}

// Usable reports whether any of TOTAL, BW_A3, BW_A4, COLOR_A3, COLOR_A4 is
// set. The legacy COLOR field alone is not enough.
func (r Raw) Usable() bool {
	return r.Total != nil || r.BWA3 != nil || r.BWA4 != nil || r.ColorA3 != nil || r.ColorA4 != nil
}

// Snapshot is the normalized counter record.
type Snapshot struct {
	BWA3       *int `json:"bw_a3"`
	BWA4       *int `json:"bw_a4"`
	ColorA3    *int `json:"color_a3"`
	ColorA4    *int `json:"color_a4"`
	TotalPages int  `json:"total_pages"`
}

// Branch names the decision-tree path Normalize took.
type Branch string

const (
	BranchSplitColor   Branch = "split_color"
	BranchA3Mono       Branch = "a3_mono"
	BranchGenericColor Branch = "generic_color"
	BranchA4Mono       Branch = "a4_mono"
	BranchPassThrough  Branch = "pass_through"
)

// ParseCount parses a counter value. Blank, non-integer and negative values
// yield nil.
func ParseCount(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// ReadRaw reads counter fields from a PAGECOUNTERS value. When a tag
// repeats, the first occurrence is used. BW_A3/BW_A4 fall back to the
// legacy PRINT_A3/PRINT_A4 names.
func ReadRaw(pc rawdoc.Value) Raw {
	field := func(names ...string) *int {
		for _, name := range names {
			v, ok := pc.Get(name)
			if !ok {
				continue
			}
			if n := ParseCount(v.Text()); n != nil {
				return n
			}
		}
		return nil
	}
	return Raw{
		Total:   field("TOTAL"),
		BWA3:    field("BW_A3", "PRINT_A3"),
		BWA4:    field("BW_A4", "PRINT_A4"),
		ColorA3: field("COLOR_A3"),
		ColorA4: field("COLOR_A4"),
		Color:   field("COLOR"),
	}
}

// Extract reads CONTENT/DEVICE/PAGECOUNTERS from doc and normalizes it.
func Extract(doc *rawdoc.Document) (Snapshot, Branch, error) {
	pc, ok := doc.Lookup("CONTENT", "DEVICE", "PAGECOUNTERS")
	if !ok {
		return Snapshot{}, "", fmt.Errorf("%w: PAGECOUNTERS missing", ErrEmptyCounters)
	}
	raw := ReadRaw(pc.First())
	if !raw.Usable() {
		return Snapshot{}, "", fmt.Errorf("%w: no TOTAL, BW or COLOR values", ErrEmptyCounters)
	}
	snap, branch := Normalize(raw)
	return snap, branch, nil
}

// Classify picks the first matching branch. Order matters: several shapes
// can hold at once and the earlier one wins.
func Classify(r Raw) Branch {
	switch {
	case r.BWA3 != nil && r.BWA4 != nil && r.ColorA3 != nil && r.ColorA4 != nil:
		return BranchSplitColor
	case r.BWA3 != nil && (r.ColorA3 == nil || *r.ColorA3 == 0) && r.BWA4 == nil:
		return BranchA3Mono
	case r.BWA3 == nil && r.Color != nil && *r.Color > 0:
		return BranchGenericColor
	case r.BWA3 == nil:
		return BranchA4Mono
	default:
		return BranchPassThrough
	}
}

// Normalize maps raw fields to a Snapshot. TotalPages is TOTAL, or 0.
//
//   - split_color: color_a3 = COLOR_A3+BW_A3, color_a4 = COLOR_A4+BW_A4
//   - a3_mono: bw_a3 = BW_A3, bw_a4 = max(0, TOTAL-BW_A3)
//   - generic_color: color_a4 = TOTAL
//   - a4_mono: bw_a4 = TOTAL
//   - pass_through: present fields copied unchanged
func Normalize(r Raw) (Snapshot, Branch) {
	total := 0
	if r.Total != nil {
		total = *r.Total
	}
	snap := Snapshot{TotalPages: total}

	branch := Classify(r)
	switch branch {
	case BranchSplitColor:
		snap.ColorA3 = intPtr(*r.ColorA3 + *r.BWA3)
		snap.ColorA4 = intPtr(*r.ColorA4 + *r.BWA4)
	case BranchA3Mono:
		snap.BWA3 = intPtr(*r.BWA3)
		snap.BWA4 = intPtr(max(0, total-*r.BWA3))
	case BranchGenericColor:
		snap.ColorA4 = intPtr(total)
	case BranchA4Mono:
		snap.BWA4 = intPtr(total)
	case BranchPassThrough:
		snap.BWA3 = copyPtr(r.BWA3)
		snap.BWA4 = copyPtr(r.BWA4)
		snap.ColorA3 = copyPtr(r.ColorA3)
		snap.ColorA4 = copyPtr(r.ColorA4)
	}
	return snap, branch
}

func intPtr(n int) *int { return &n }

func copyPtr(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}
