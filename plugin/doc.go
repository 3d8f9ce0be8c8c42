// Package plugin hosts separately compiled analysis plugins as WebAssembly
// modules and exchanges wire-format data with them through their linear
// memory.
//
// A plugin must export its memory as "memory". When it also exports
// cabi_realloc (and optionally cabi_free) buffers are allocated by the guest;
// otherwise the host manages a heap in pages it grows past the module's
// initial memory, leaving the guest's own data untouched.
//
// Every buffer the host publishes into a plugin is allocated through the
// plugin's Boundary and must be released through it.
//
// Plugins are not safe for concurrent use.
package plugin
