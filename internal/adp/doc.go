// Package adp verifies Ad Protocol (ADP) domain associations: a DNS TXT
// record of the form "adp:hasEcashAccount=<address>" binds a domain to an
// ecash address. Verified associations are persisted for later lookup.
package adp
