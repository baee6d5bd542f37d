// Package schema describes the tables a database stores: columns, their
// types and indexes, associations between tables, and the migrations that
// move a store from one schema version to the next.
package schema
