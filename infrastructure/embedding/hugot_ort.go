//go:build ORT

package embedding

import (
	"os"
	"path/filepath"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
)

// newHugotSession builds an ONNX Runtime backed session, pointing hugot at
// the shared library when one can be located.
func newHugotSession() (*hugot.Session, error) {
	var opts []options.WithOption
	if dir := resolveORTLibDir(); dir != "" {
		opts = append(opts, options.WithOnnxLibraryPath(dir))
	}
	return hugot.NewORTSession(opts...)
}

// resolveORTLibDir locates the ONNX Runtime shared library directory.
// MODELCACHE_ORT_LIB_DIR wins, then ORT_LIB_DIR (the name the download-ort
// tool writes to), then a lib/ directory next to the executable or under the
// working directory. An empty result leaves hugot on its platform defaults.
func resolveORTLibDir() string {
	for _, env := range []string{"MODELCACHE_ORT_LIB_DIR", "ORT_LIB_DIR"} {
		if dir := os.Getenv(env); dir != "" {
			return dir
		}
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "lib"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "lib"))
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
