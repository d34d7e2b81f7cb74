// Package validate checks user-supplied identifiers before they reach the
// CLI daemon.
package validate
