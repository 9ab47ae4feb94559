package date

import (
	"fmt"
	"iter"
)

// Range represents a range of dates, both boundaries included.
type Range struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// NewRange return a well known period
func NewRange(d Date, period Period) Range {
	return Range{From: d.StartOf(period), To: d.EndOf(period)}
}

// Year returns the calendar year as a Range.
func Year(year int) Range { return NewRange(New(year, 1, 1), Yearly) }

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return (!date.Before(r.From) && !date.After(r.To)) }

// Days returns an iterator over every calendar day in the range, in chronological order.
func (r Range) Days() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.From; !d.After(r.To); d = d.Add(1) {
			if !yield(d) {
				return
			}
		}
	}
}

func (r Range) String() string { return fmt.Sprintf("[%s, %s]", r.From, r.To) }
