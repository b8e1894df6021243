// Package definitions loads permission and role tables from files or S3 and
// keeps a running evaluator's catalog in sync with the definition file.
//
// A table is only put into service after it parses and validates as a whole.
// A rejected reload leaves the previous catalog in place.
package definitions
