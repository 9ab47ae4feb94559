// Package foreignassets computes the Foreign Assets schedule of an individual
// holding vested stock of a foreign company.
//
// For every holding of a tax year it reports, in the home currency:
//   - the initial value of the shares held during the year, at acquisition price,
//   - the peak value, the highest of quantity held × close × exchange rate over
//     the priced days of the year,
//   - the closing value at the last close of the year,
//   - the gross proceeds of the sales of the year, and their acquisition cost.
//
// Sales are matched against vests first in first out through a Ledger. Market
// data is consumed through the Market interface, so that the computation never
// performs I/O: callers populate a cache beforehand (see package market) and
// ComputeSchedule reads it.
//
// Failures are attributed to a symbol and collected, one symbol failing never
// prevents the others from being valued.
package foreignassets
