// Package d2 decodes Diablo II character save files (.d2s) and PlugY stash
// files (.d2x personal, .sss shared) into immutable in-memory records.
//
// The format is byte-oriented for the header, attribute and skill sections
// and switches to a sub-byte bitstream for item records, where field widths
// depend on previously decoded values and on the property tables in
// internal/data. Decoding is read-only and strictly forward; a fatal error
// (bad signature, truncation, unknown property width) aborts the whole file
// and no partial result is returned. Name table misses are non-fatal: the
// raw id is surfaced and the display name falls back to the base name.
//
// A decode session owns its buffer exclusively, so independent files may be
// decoded concurrently without coordination. The shared lookup tables are
// immutable after first load.
package d2
