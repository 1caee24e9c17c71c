package sessionfile

import "os"

// readDir lists immediate entry names, skipping subdirectories. Split out so
// tests can exercise scan failures without constructing unreadable dirs.
func readDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
