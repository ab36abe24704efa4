//go:build !embed_model

package embedding

import "fmt"

const hasEmbeddedModel = false

func extractEmbeddedModel(string) (string, error) {
	return "", fmt.Errorf("no embedded model compiled in (build with -tags embed_model)")
}
