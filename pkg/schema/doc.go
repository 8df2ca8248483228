// Package schema reads and writes definition documents.
//
// A document is plain YAML (or JSON) describing one consumer definition or
// one provider revision:
//
//	api: customers
//	revision: 1
//	side: provider
//	records:
//	  - name: Customer
//	    fields:
//	      - name: id
//	        type: int64
//	      - name: fullName
//	        type: string
//	        replaces: [name]
//	      - name: email
//	        type: {kind: string, bound: 200}
//	        optionality: OPT_IN
//	operations:
//	  - name: get
//	    input: CustomerRef
//	    output: Customer
//
// Compile turns a document into an apimodel.Definition. Provider elements
// continue the element of the previous revision with the same internal name
// unless they are marked new or list what they replace.
package schema
