/*
Package provision installs the vendor-declared platforms and libraries
the first time the application starts.

A run registers the vendor board index with the backend, then, unless
the persisted flag says provisioning already happened, installs the
required and vendor platforms, every library listed in the remote
manifest and the built-in library bundle. Per-item failures are
collected into a Report and surfaced as warnings; the flag is set once
at the end whatever the outcome.
*/
package provision
