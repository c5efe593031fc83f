// Package cli implements accessplane-admin, the operator command line for
// the authorization store.
//
// Every command that touches storage accepts -storage, -db and -actor. The
// actor is recorded as the assigner and as the audit trail's actor.
//
//	accessplane-admin migrate -db "postgres://localhost/accessplane?sslmode=disable"
//	accessplane-admin seed -roles-file roles.yaml
//	accessplane-admin assign -user u1 -app billing -role-type CUSTOMER_ADMIN
//	accessplane-admin check -user u1 -app billing -permission teamManagement -level ADMIN
//	accessplane-admin token -user u1 -ttl 1h
package cli
