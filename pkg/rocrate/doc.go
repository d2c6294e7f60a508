// Package rocrate models an RO-Crate metadata graph as a flat set of
// identified entities linked by reference, and packages a finished graph
// together with its payload files into a zip archive.
package rocrate
