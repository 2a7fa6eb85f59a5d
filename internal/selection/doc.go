// Package selection builds ordered active-cell selections from predicates
// and aggregates per-cell values over them.
//
// Selections are always evaluated fresh from the arrays passed in; nothing
// is cached between calls, so mutating a property array and re-evaluating
// can never observe a stale result.
package selection
