// Package observe provides the multicast primitives behind live queries.
//
// SharedSubscribable shares one underlying source between many subscribers
// with a subscribe, replay-last, ref-count policy. Subject is a plain
// synchronous multicast used for change streams.
package observe
