// Package registry holds the live state of every exported metric: name,
// label names and the merged value tree. It is an explicitly owned,
// mutex-guarded store handed to the collector at startup.
package registry
