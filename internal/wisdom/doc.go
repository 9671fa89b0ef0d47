// Package wisdom condenses matched reflections into a single principle and
// keeps the capped, score-ranked Wisdom Base.
package wisdom
