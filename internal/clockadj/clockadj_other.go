//go:build !linux

package clockadj

import "time"

// Step — заглушка на не-Linux (системное время не меняется).
func Step(t time.Time) error {
	_ = t
	return nil
}

// KernelSynced — заглушка на не-Linux.
func KernelSynced() (bool, error) {
	return false, nil
}
