package shared

import "fmt"

// WaveLockKey builds the redis key guarding status changes of one wave.
func WaveLockKey(waveID int64) string {
	return fmt.Sprintf("wave:%d:lock", waveID)
}
