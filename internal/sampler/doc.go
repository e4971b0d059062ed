// Package sampler keeps a periodically refreshed snapshot of mounted
// volumes. The snapshot is an immutable value swapped atomically each cycle;
// readers take the current pointer and never block the sampling loop.
package sampler
