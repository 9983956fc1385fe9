/*
Package ports defines the driven ports (interfaces) of the XRLT interpreter.

These interfaces decouple the runtime from the collaborators it delegates to,
so query languages, script languages, transports, and storage can be swapped
without touching the directive dispatcher.

# Key Interfaces

  - QueryEvaluator: Evaluates select/test expressions against a context node.
  - ScriptEvaluator: Runs embedded script blocks, calling back through ScriptHost.
  - Fetcher: Issues the HTTP requests behind include.
  - ResponseCache: Stores include responses between transforms.
  - StylesheetApplier: Runs the secondary stylesheet engine behind transform.
  - SheetLoader: Retrieves requestsheets by name.
*/
package ports
