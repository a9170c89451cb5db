// Package lineedit reads prompted input lines and keeps a bounded history
// that can be persisted to a file.
package lineedit
