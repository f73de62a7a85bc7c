// Package file provides the file-based implementation of the dataset
// registry. Datasets are stored in a single TOML document so operators
// can review and edit them by hand; writes go through a temp file and
// rename so a crash mid-write never truncates the registry.
package file
