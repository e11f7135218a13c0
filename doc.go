// Package edgeml provides a Go execution provider for on-device ML
// accelerator runtimes.
//
// The provider compiles a model artifact once, caches the compiled form on
// disk, and marshals tensors across the accelerator boundary on every
// prediction: host buffers are bound zero-copy where possible, 64-bit
// integers are narrowed to the accelerator's 32-bit representation, and
// results are copied back into caller-owned buffers with dynamic output
// shapes resolved against the concrete runtime shapes.
//
// The accelerator itself is an injectable capability (see package accel);
// accel/cpu ships a pure-Go reference accelerator so the provider runs on
// any platform. Typical usage:
//
//	rt := runtime.New(cpu.New(), runtime.WithCacheDir(dir))
//	sess, err := rt.OpenSession(runtime.ModelPackage(path))
//	if err != nil { ... }
//	defer sess.Close()
//
//	err = sess.Predict(inputs, outputs, alloc)
package edgeml
