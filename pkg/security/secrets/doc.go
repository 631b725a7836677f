// Package secrets resolves ${secret:name} references in configuration
// values.
//
// Credentials for the storefront webhook and the PostgreSQL backend should
// not live in pricegate.yaml. Instead the config carries a reference:
//
//	sink:
//	  webhook:
//	    headers:
//	      Authorization: "Bearer ${secret:storefront-token}"
//
// A Resolver tries its providers in order. EnvProvider maps
// "storefront-token" to PRICEGATE_SECRET_STOREFRONT_TOKEN; FileProvider
// reads <dir>/storefront-token, the layout used by mounted Kubernetes
// secrets.
package secrets
