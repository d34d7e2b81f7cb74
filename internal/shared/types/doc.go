// Package types provides shared data structures for the package backend.
//
// Core Types:
//   - Package: merged catalog record (installed + remote)
//   - Release, RemoteRecord, InstalledRecord: raw backend records
//   - InstallOptions, UninstallOptions, ArchiveOptions: caller requests
//   - InstallRequest, UninstallRequest, ArchiveRequest: backend requests
//
// Streaming:
//   - ProgressChunk: one element of a mutation stream
//   - ProgressStream: blocking iterator, io.EOF terminates
//
// Notifications:
//   - OutputChunk: output line tagged with a progress ID
//   - Event: listener notification (installed, uninstalled, output, ...)
//
// Example Usage:
//
//	pkg := types.Package{
//	    ID:                "Servo",
//	    Kind:              types.KindLibrary,
//	    AvailableVersions: []string{"1.2.1", "1.2.0"},
//	}
//	latest := pkg.Latest() // "1.2.1"
package types
