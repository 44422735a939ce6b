package query

import "fmt"

// aggregate computes fn over the values of ref in rows. COUNT counts rows;
// the others skip missing and null values. Empty input gives 0 for COUNT and
// SUM and nil for AVG, MIN and MAX.
func aggregate(fn AggFunc, ref FieldRef, rows []binding) any {
	if fn == AggCount {
		return len(rows)
	}

	var (
		sum   float64
		n     int
		best  any
		valid bool
	)
	for _, b := range rows {
		v, ok := b.lookup(ref)
		if !ok || v == nil {
			continue
		}
		switch fn {
		case AggSum, AggAvg:
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			sum += f
			n++
		case AggMin, AggMax:
			if !valid {
				best, valid = v, true
				continue
			}
			c, ok := order(v, best)
			if !ok {
				continue
			}
			if (fn == AggMin && c < 0) || (fn == AggMax && c > 0) {
				best = v
			}
		}
	}

	switch fn {
	case AggSum:
		return sum
	case AggAvg:
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	default:
		return best
	}
}

// group buckets rows by the value of ref in first-seen order. Rows missing
// the key share the nil bucket.
func group(ref FieldRef, rows []binding) [][]binding {
	index := make(map[string]int)
	var buckets [][]binding
	for _, b := range rows {
		v, _ := b.lookup(ref)
		key := groupKey(v)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], b)
	}
	return buckets
}

// groupKey folds numerically equal values together so 2 and 2.0 share a
// bucket.
func groupKey(v any) string {
	if f, ok := toFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
