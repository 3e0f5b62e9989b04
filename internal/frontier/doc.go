// Package frontier holds the shared state of a crawl: the addresses still to
// visit, the addresses already fetched, and the retry budget of failing ones.
//
// Lifecycle of an identity:
//
//	discovered --Offer--> pending --ClaimNext--> in flight --RecordSuccess--> fetched
//	                         ^                       |
//	                         +----RecordFailure------+--(budget spent)--> dropped
//
// The crawl is finished when nothing is pending and nothing is in flight
// (IsQuiescent). State lives only for one crawl; nothing is persisted.
package frontier
