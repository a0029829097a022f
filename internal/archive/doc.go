// Package archive writes and opens library archives.
//
// Layout of a library named "geo" written to out/:
//
//	out/geo/manifest          key=value lines
//	out/geo/geo.meta.strata   metadata envelope (msgpack)
//	out/geo/ir/module.ir      module record (msgpack, xz)
//	out/geo/ir/<n>G.decl      global declaration record (msgpack, xz)
//	out/geo/ir/<n>L.decl      local declaration record
//	out/geo/debug.txt         IR dump
//
// The archive is assembled in a staging directory next to its final location
// and renamed into place, so readers see either the old archive, the new one,
// or none. Writers of the same library serialize on out/.geo.lock.
package archive
