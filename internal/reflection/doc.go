// Package reflection derives the four-field ERSP reflection (event,
// interpretation, lesson, rule) attached to every stored experience.
//
// Extraction is pure and total. A complete reflection supplied by the
// caller passes through unchanged; missing fields are synthesized from the
// experience's content and declared type:
//
//	r := reflection.Extract(reflection.Experience{
//	    Content: "server crashed: null pointer",
//	    Type:    "error",
//	})
//	// r.Lesson == reflection.LessonFor(reflection.CategoryError)
//
// Heuristics are keyed by Category so each branch can be enumerated in
// tests.
package reflection
