// Package sim orchestrates the lock-step time iteration of a heat-diffusion
// chain.
//
// Each unit owns one [Simulator] holding a double-buffered slab. Every
// iteration performs the same fixed sequence:
//
//   - exchange-and-update the two boundary slices while the interior slice
//     computes concurrently
//   - reduce the iteration's total energy to the coordinating unit
//   - swap the current/next buffer roles
//
// A unit must never read the next iteration's halo before its neighbor's
// boundary writes are delivered; the blocking receive inside each boundary
// task enforces this. Communication failures abort the whole run: once a
// halo exchange is missed the distributed field is unrecoverable.
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe; each belongs to exactly one
// goroutine or process. For a whole chain inside one process, use
// [RunGroup].
package sim
