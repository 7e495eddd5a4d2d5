// Package stats defines the match statistics produced by the analysis model and
// folds per-chunk estimates into a running match summary.
//
// Counters are summed across chunks. Rally length and opening-attack success
// rates are weighted means recomputed on every merge, so the accumulator never
// needs the individual chunk results to stay correct.
package stats
