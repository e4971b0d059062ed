// Package eject holds the removal policy: the smart-eject protocol that
// drives a volume from mounted to hardware-detached, and the coordinator
// that sequences scan, kill, force and dismount commands over it.
//
// The policy operates only on the capability interfaces from the volume and
// occupancy packages, so every path in this package is exercised by tests
// with fake implementations.
package eject
