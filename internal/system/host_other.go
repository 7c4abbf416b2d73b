//go:build !linux

package system

import "runtime"

func readKernel() (string, error) { return runtime.GOOS, nil }
