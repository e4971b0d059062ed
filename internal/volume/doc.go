// Package volume wraps the OS block-device and device-tree primitives used to
// detach removable volumes.
//
// The Devices interface is the narrow capability surface the eject policy is
// written against; the real implementation exists only on Windows, other
// platforms get a stub that reports ErrUnsupported. Drive identifiers are
// single letters, normalized by NormalizeLetter before any OS call.
package volume
