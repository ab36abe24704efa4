// Build-time tool that fetches the native libraries the ORT hugot backend
// links against: the ONNX Runtime shared library and the HuggingFace
// tokenizers static library.
//
// Required env: ORT_VERSION        (e.g. "1.23.2")
// Optional env: ORT_LIB_DIR        (default "./lib")
//               TOKENIZERS_VERSION (default "1.24.0")
//
// Usage: ORT_VERSION=1.23.2 go run ./tools/download-ort
package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// platformArtifacts maps GOOS/GOARCH to the release archive names.
type platformArtifacts struct {
	ortArchive string // fmt pattern taking the ORT version
	ortLibrary string
	tokArchive string
}

var platforms = map[string]platformArtifacts{
	"linux/amd64": {
		ortArchive: "onnxruntime-linux-x64-%s.tgz",
		ortLibrary: "libonnxruntime.so",
		tokArchive: "libtokenizers.linux-amd64.tar.gz",
	},
	"linux/arm64": {
		ortArchive: "onnxruntime-linux-aarch64-%s.tgz",
		ortLibrary: "libonnxruntime.so",
		tokArchive: "libtokenizers.linux-arm64.tar.gz",
	},
	"darwin/amd64": {
		ortArchive: "onnxruntime-osx-x86_64-%s.tgz",
		ortLibrary: "libonnxruntime.dylib",
		tokArchive: "libtokenizers.darwin-x86_64.tar.gz",
	},
	"darwin/arm64": {
		ortArchive: "onnxruntime-osx-arm64-%s.tgz",
		ortLibrary: "libonnxruntime.dylib",
		tokArchive: "libtokenizers.darwin-arm64.tar.gz",
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "download-ort: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ortVersion := os.Getenv("ORT_VERSION")
	if ortVersion == "" {
		return fmt.Errorf("ORT_VERSION env var is required")
	}
	tokVersion := os.Getenv("TOKENIZERS_VERSION")
	if tokVersion == "" {
		tokVersion = "1.24.0"
	}
	destDir := os.Getenv("ORT_LIB_DIR")
	if destDir == "" {
		destDir = "./lib"
	}

	key := runtime.GOOS + "/" + runtime.GOARCH
	platform, ok := platforms[key]
	if !ok {
		return fmt.Errorf("no prebuilt libraries for %s", key)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	ortURL := fmt.Sprintf(
		"https://github.com/microsoft/onnxruntime/releases/download/v%s/"+platform.ortArchive,
		ortVersion, ortVersion,
	)
	if err := install(ortURL, destDir, platform.ortLibrary); err != nil {
		return fmt.Errorf("ONNX Runtime: %w", err)
	}

	tokURL := fmt.Sprintf(
		"https://github.com/daulet/tokenizers/releases/download/v%s/%s",
		tokVersion, platform.tokArchive,
	)
	if err := install(tokURL, destDir, "libtokenizers.a"); err != nil {
		return fmt.Errorf("tokenizers: %w", err)
	}

	return nil
}

// install downloads the archive at url and extracts filename into destDir,
// skipping the download when the file already exists.
func install(url, destDir, filename string) error {
	destPath := filepath.Join(destDir, filename)
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("%s already exists, skipping\n", destPath)
		return nil
	}

	fmt.Printf("Downloading %s\n", url)

	delay := 2 * time.Second
	var err error
	for attempt := range 4 {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}
		if err = fetchAndExtract(url, destDir, filename); err == nil {
			fmt.Printf("Installed %s\n", destPath)
			return nil
		}
	}
	return err
}

func fetchAndExtract(url, destDir, filename string) error {
	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	return extractTgz(resp.Body, destDir, filename)
}

func extractTgz(body io.Reader, destDir, filename string) error {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close() //nolint:errcheck

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read: %w", err)
		}

		// Symlinks and directories are not the library itself
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !matchesLibrary(filepath.Base(header.Name), filename) {
			continue
		}

		return writeFile(filepath.Join(destDir, filename), tr)
	}

	return fmt.Errorf("%s not found in archive", filename)
}

// matchesLibrary accepts both the plain name and versioned variants like
// libonnxruntime.1.23.2.dylib.
func matchesLibrary(base, filename string) bool {
	if base == filename {
		return true
	}
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.HasPrefix(base, stem+".")
}

func writeFile(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return out.Close()
}
