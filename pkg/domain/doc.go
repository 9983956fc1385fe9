/*
Package domain contains the core types of the XRLT interpreter.

It defines the directive vocabulary, the values that can be bound to variables,
and the error taxonomy shared by the runtime and its adapters. This package is kept
free of I/O, following the same hexagonal layout as the rest of the module.

# Key Entities

  - Kind: The closed set of directives (param, slice, field, include, ...).
  - Params: The immutable external parameters of a transform.
  - NodeSet: A query result holding several nodes.
  - Errors: Fatal authoring errors and the two locally recovered failures
    (InclusionError and ScriptError).
*/
package domain
