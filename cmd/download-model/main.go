// Standalone tool that exports the all-MiniLM-L6-v2 sentence transformer to
// ONNX for the hugot embedding backend.
//
// The Python conversion script is embedded so the command works when
// installed via `go install`. Requires uv (https://docs.astral.sh/uv/) and
// Python >=3.10.
//
// Usage: download-model <dest>
package main

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

//go:embed convert-model.py
var script []byte

const modelDirName = "all-MiniLM-L6-v2"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: download-model <dest>")
		os.Exit(1)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "download-model: %v\n", err)
		os.Exit(1)
	}
}

func run(dest string) error {
	modelDir := filepath.Join(dest, modelDirName)
	if modelPresent(modelDir) {
		fmt.Printf("Model already present at %s\n", modelDir)
		return nil
	}

	scriptPath, cleanup, err := writeScript()
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Converting model to %s...\n", modelDir)
	if err := convertWithRetry(scriptPath, dest); err != nil {
		return fmt.Errorf("convert model: %w", err)
	}

	fmt.Printf("Model ready at %s\n", modelDir)
	return nil
}

func modelPresent(modelDir string) bool {
	for _, rel := range []string{"tokenizer.json", filepath.Join("onnx", "model.onnx")} {
		if _, err := os.Stat(filepath.Join(modelDir, rel)); err != nil {
			return false
		}
	}
	return true
}

func writeScript() (path string, cleanup func(), err error) {
	tmp, err := os.CreateTemp("", "convert-model-*.py")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup = func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(script); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// convertWithRetry runs the export up to four times with exponential backoff;
// the HuggingFace hub download flakes often enough to warrant it.
func convertWithRetry(scriptPath, dest string) error {
	delay := 2 * time.Second
	var err error
	for attempt := range 4 {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}

		cmd := exec.Command("uv", "run", scriptPath, dest)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err = cmd.Run(); err == nil {
			return nil
		}
	}
	return err
}
