// Package security provides validation, sanitization, and limits for jobgraph.
//
// This package includes:
//   - Input validation for job type names
//   - Error message sanitization before storage and transport
//   - Clamping functions to enforce safe limits on attempts and concurrency
//   - The inline payload ceiling that triggers blob-store offload
package security
