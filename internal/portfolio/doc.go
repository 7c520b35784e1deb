// Package portfolio turns a ledger of trades into positions and value-over-time series.
//
// The pipeline is Ledger -> Aggregator -> Reconstruct -> Merge -> Combine. The Ledger
// records and removes transactions and keeps every non-quote trade paired with a
// generated quote-asset cash flow. The Aggregator recomputes the cached Position for
// an (owner, asset) pair after each mutation. Reconstruct expands a position's
// transaction snapshot into a dense daily holdings series, Merge scales price candles
// by those holdings, and Combine sums per-asset value series into a portfolio series.
package portfolio
