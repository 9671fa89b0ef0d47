// Package learning adjusts rule utility scores from decision outcomes and
// keeps a bounded ledger of recent results.
//
// Scores move asymmetrically: +1.0 for every rule used in a successful
// decision and -0.5 for each rule used in a failed one, so rules that fire
// on false positives lose standing faster than they gain it.
package learning
