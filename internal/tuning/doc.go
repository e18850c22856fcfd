// Package tuning finds tunable numeric assignments in script text and
// rewrites their values in place.
//
// Detection is a best-effort heuristic over naming conventions common in
// data-analysis code (learning_rate, n_clusters, max_depth, seed, ...).
// False positives and false negatives are expected; what is guaranteed is
// that detection is deterministic, side-effect free, and that a value
// written by Rewrite is read back unchanged by Detect.
package tuning
