// Build-time tool that pulls the all-MiniLM-L6-v2 sentence transformer from
// the HuggingFace hub into infrastructure/embedding/models/, where the
// embed build tag picks it up via //go:embed.
//
// Usage: go run ./tools/download-model [dest]
package main

import (
	"fmt"
	"os"

	"github.com/knights-analytics/hugot"
)

const (
	defaultDest = "infrastructure/embedding/models"
	modelID     = "sentence-transformers/all-MiniLM-L6-v2"
)

func main() {
	dest := defaultDest
	if len(os.Args) > 1 {
		dest = os.Args[1]
	}

	if err := download(dest); err != nil {
		fmt.Fprintf(os.Stderr, "download-model: %v\n", err)
		os.Exit(1)
	}
}

func download(dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	fmt.Printf("Downloading %s to %s...\n", modelID, dest)

	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	modelPath, err := hugot.DownloadModel(modelID, dest, opts)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}

	fmt.Printf("Model downloaded to %s\n", modelPath)
	return nil
}
