// Package allocation splits a payment across ordered buckets.
package allocation

import "github.com/shopspring/decimal"

type Bucket string

const (
	BucketDeposit  Bucket = "deposit"
	BucketRent     Bucket = "rent"
	BucketCover    Bucket = "cover"
	BucketExtra    Bucket = "extra"
	BucketOverflow Bucket = "overflow"
)

// Step is one bucket in priority order. An unbounded step absorbs whatever is left.
type Step struct {
	Bucket    Bucket
	Capacity  decimal.Decimal
	Unbounded bool
}

func Bounded(bucket Bucket, capacity decimal.Decimal) Step {
	if capacity.IsNegative() {
		capacity = decimal.Zero
	}
	return Step{Bucket: bucket, Capacity: capacity}
}

func Unbounded(bucket Bucket) Step {
	return Step{Bucket: bucket, Unbounded: true}
}

type Allocation struct {
	amounts   map[Bucket]decimal.Decimal
	Remaining decimal.Decimal
}

// Plan fills steps in order. The allocated amounts plus Remaining always equal amount.
func Plan(steps []Step, amount decimal.Decimal) Allocation {
	out := Allocation{amounts: make(map[Bucket]decimal.Decimal, len(steps)), Remaining: amount}
	if !amount.IsPositive() {
		return out
	}

	for _, step := range steps {
		if !out.Remaining.IsPositive() {
			break
		}
		take := out.Remaining
		if !step.Unbounded {
			capacity := step.Capacity
			if capacity.IsNegative() {
				capacity = decimal.Zero
			}
			take = decimal.Min(take, capacity)
		}
		if !take.IsPositive() {
			continue
		}
		out.amounts[step.Bucket] = out.Get(step.Bucket).Add(take)
		out.Remaining = out.Remaining.Sub(take)
	}
	return out
}

func (a Allocation) Get(bucket Bucket) decimal.Decimal {
	if v, ok := a.amounts[bucket]; ok {
		return v
	}
	return decimal.Zero
}

func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a.amounts {
		total = total.Add(v)
	}
	return total
}
