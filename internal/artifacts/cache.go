package artifacts

import "os"

// Present reports whether the path exists. It backs every cache check that
// keeps a re-run from redoing completed downloads, extractions and builds.
func Present(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
