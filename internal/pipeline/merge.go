// -----------------------------------------------------------------------
// Merge step - normalize, deduplicate and backfill extracted services
// -----------------------------------------------------------------------

package pipeline

import (
	"regexp"
	"strings"

	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/normalize"
)

type mergeKey struct {
	description string
	unit        string
}

// MergeServices post-processes raw extracted services: item codes are parsed
// out of descriptions, units normalized, and duplicates folded.
//
// Two services are duplicates iff their (canonical-description,
// normalized-unit) keys are equal, regardless of item code; quantities sum,
// the longest original description survives, and the first non-empty item
// code wins. Services that end up without a positive quantity or a valid
// unit are dropped: a completed job never carries them.
func MergeServices(raw []models.Service, rawText string) []models.Service {
	type bucket struct {
		svc   models.Service
		order int
	}
	buckets := make(map[mergeKey]*bucket)
	var order []mergeKey

	for _, in := range raw {
		svc := in

		if svc.ItemCode == "" {
			code, rest := normalize.ExtractItemCode(svc.Description)
			svc.ItemCode = code
			svc.Description = rest
		}
		svc.Description = normalize.CollapseWhitespace(svc.Description)
		svc.Unit = normalize.Unit(svc.Unit)

		if svc.Description == "" {
			continue
		}
		if !svc.HasQuantity() {
			if q := backfillQuantity(rawText, svc.ItemCode); q != nil {
				svc.Quantity = q
			}
		}
		if !svc.HasQuantity() || svc.Unit == "" || !normalize.ValidUnit(svc.Unit) {
			continue
		}

		key := mergeKey{
			description: normalize.Description(svc.Description),
			unit:        svc.Unit,
		}
		if existing, ok := buckets[key]; ok {
			sum := existing.svc.Qty() + svc.Qty()
			existing.svc.Quantity = &sum
			if len(svc.Description) > len(existing.svc.Description) {
				existing.svc.Description = svc.Description
			}
			if existing.svc.ItemCode == "" {
				existing.svc.ItemCode = svc.ItemCode
			}
			continue
		}
		buckets[key] = &bucket{svc: svc, order: len(order)}
		order = append(order, key)
	}

	merged := make([]models.Service, 0, len(order))
	for _, key := range order {
		merged = append(merged, buckets[key].svc)
	}
	return merged
}

// backfillQuantity scans the raw document text for an unambiguous quantity
// token adjacent to the item code. Only a single match qualifies; two
// different candidates mean ambiguity and the quantity stays unset.
func backfillQuantity(rawText, itemCode string) *float64 {
	if rawText == "" || itemCode == "" {
		return nil
	}

	pattern := regexp.QuoteMeta(itemCode) + `\s+(?:.*?\s)??([\d.,]+)\s`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}

	var found *float64
	for _, line := range strings.Split(rawText, "\n") {
		if !strings.Contains(line, itemCode) {
			continue
		}
		m := re.FindStringSubmatch(line + " ")
		if m == nil {
			continue
		}
		q := ParseQuantity(m[1])
		if q == nil {
			continue
		}
		if found != nil && *found != *q {
			return nil // Ambiguous
		}
		found = q
	}
	return found
}
