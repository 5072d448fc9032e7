/*
Package log provides the structured logger shared by every MckoiDDB daemon
and the client library, wrapping zerolog.

Init must be called once per process before any component logger is
derived from it; callers typically do this from a cobra.OnInitialize
hook. The With* helpers attach the field a given subsystem
cares about (component, path, node id, transaction id) without requiring
every call site to repeat the same .Str() chain.
*/
package log
