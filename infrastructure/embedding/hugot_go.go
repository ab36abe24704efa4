//go:build !ORT

package embedding

import "github.com/knights-analytics/hugot"

// newHugotSession builds the pure-Go inference session. Slower than the ORT
// backend but needs no native ONNX Runtime library on the host.
func newHugotSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
