/*
Package config parses MckoiDDB's plain-text configuration files (spec.md
§6.1): lines of `key = value`, comments starting with `#`, plus two small
numeric grammars layered on top of the value string —  a byte-size suffix
grammar (`16MB`) and a sum-of-terms time-measure grammar (`5 minutes 30
seconds`). This grammar is specific to MckoiDDB and isn't expressed by any
library in the example corpus, so it is hand-written on bufio.Scanner
rather than reached for a generic config library (the stdlib-justification
rule in DESIGN.md covers this package).
*/
package config
