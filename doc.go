/*
Package xrlt is an interpreter for XRLT requestsheets: XML documents that
describe how to build an XML or HTML response out of request parameters,
reusable templates and remote JSON resources.

A requestsheet is an ordinary XML document. Elements in the namespace
http://xrlt.net/Transform are directives; every other element is copied to
the output while its children are evaluated.

	<x:requestsheet xmlns:x="http://xrlt.net/Transform">
	  <x:param name="user"/>
	  <x:slice name="greeting">
	    <p>Hello <b><x:value-of select="$who"/></b></p>
	  </x:slice>
	  <html>
	    <body>
	      <x:include href="https://api.example.com/users/{$user}">
	        <x:success>
	          <x:apply name="greeting">
	            <x:with-param name="who" select="name"/>
	          </x:apply>
	        </x:success>
	        <x:failure><p>Unknown user</p></x:failure>
	      </x:include>
	    </body>
	  </html>
	</x:requestsheet>

# Usage

	eng, err := xrlt.New("./sheets")
	if err != nil {
		log.Fatal(err)
	}
	html, err := eng.TransformSheet(ctx, "index.xrl", domain.Params{"user": "7"})

Collaborators are injected with options: the transport used by include
(WithFetcher), a response cache (WithResponseCache), the stylesheet engine
behind transform (WithStylesheetApplier) and additional script evaluators
(WithScriptEvaluator). Starlark is registered under the "starlark" type.

# Imports and responses

A top-level x:import splices the top-level children of another sheet, most
often a library of slices, into the importing one when the sheet is loaded.
Hrefs are relative to the importing sheet. x:response-status and
x:response-header set the HTTP metadata returned by RenderSheet; the HTTP
front end applies them to its reply.

# Remote resources

Included JSON is converted to XML with package pkg/xmljson: scalars become
leaves carrying a type attribute, lists become repeated siblings and objects
become one child per key.
*/
package xrlt
