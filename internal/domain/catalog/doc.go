// Package catalog merges the installed list and remote search results of
// the CLI backend into one queryable view per package kind.
//
// Records are rebuilt on every call and never cached. Backend errors that
// only mean "nothing there yet" (a board whose platform is not installed,
// an unknown package) yield empty results instead of failures.
package catalog
