//go:build !windows

package sampler

type systemProbe struct{}

func (systemProbe) Label(string) string { return "" }

func (systemProbe) Removable(string) bool { return false }
