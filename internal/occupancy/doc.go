// Package occupancy discovers and ends the processes holding a removable
// volume open.
//
// Discovery runs on two channels: a Restart Manager session listing the
// registered holders of the drive root, and a full process-table sweep that
// catches executables running from the drive or anchored to it by their
// working directory. Neither channel alone is authoritative, so the Scanner
// merges both.
package occupancy
