// Package catalog defines the read-only question catalog consumed by the
// delivery cursor and the exam assembler.
//
// The production catalog lives in the content subsystem and is not part of
// this module; [Static] is an in-memory implementation used by tests, the
// load-test command and single-node deployments that preload content.
package catalog
