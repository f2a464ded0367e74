// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrBackendUnavailable is returned when the requested HAL backend is
	// not compiled in.
	ErrBackendUnavailable = errors.New("native: HAL backend not available")

	// ErrDeviceLost is returned when the GPU device is lost.
	ErrDeviceLost = errors.New("native: GPU device lost")

	// ErrZeroSizeBuffer is returned for zero-size buffer requests, which HAL
	// devices reject.
	ErrZeroSizeBuffer = errors.New("native: zero-size buffer")

	// ErrForeignBuffer is returned for buffers not created by this device.
	ErrForeignBuffer = errors.New("native: buffer belongs to another device")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("native: buffer has been destroyed")

	// ErrInvalidProvider is returned when a device provider does not expose
	// HAL types.
	ErrInvalidProvider = errors.New("native: provider does not expose HAL device")

	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("native: device closed")
)
