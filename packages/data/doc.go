// Package data resolves data-source descriptors into ordered row sequences
// for data-driven test iteration. Rows loaded for a descriptor are cached for
// the duration of one run, so the sequential and parallel paths never re-read
// the same source.
//
// Iteration is opt-in: a test iterates when it declares its own data source,
// or when the owning suite declares one and the test either sets UseData or
// statically declares the columns it reads. There is no source inspection;
// the declaration is the contract.
package data
