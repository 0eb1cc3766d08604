//go:build !opencl

package device

import "fmt"

func openOpenCL() (Context, error) {
	return nil, fmt.Errorf("%w: OpenCL support is not enabled; rebuild with -tags opencl", ErrUnsupported)
}
