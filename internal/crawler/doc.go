// Package crawler discovers every in-scope address reachable from a set of seeds.
//
// # Components
//
//   - Extractor: parses fetched HTML and returns resolved link and script candidates
//   - ScriptScanner: fetches script bodies and pulls absolute URLs out of them
//   - Scheduler: runs a bounded pool of workers over a frontier.Frontier
//   - Engine: wires scope, frontier, fetcher, extractor and scheduler together
//
// # Flow
//
// A worker claims an address, fetches it, records the result in the frontier
// and only then publishes the page's candidates. Every candidate is checked
// against the scope before the frontier sees it. The frontier reports whether a
// candidate is new; new ones are forwarded to the observer exactly once, from
// the scheduler's goroutine.
//
//	seeds ─▶ Frontier ─ClaimNext─▶ worker ─Fetch─▶ Page
//	            ▲                                   │
//	            └──── Offer (in scope only) ◀── Extractor / ScriptScanner
//
// # Usage
//
//	sc, _ := scope.New(scope.Document{Include: []string{`https://app\.example\.com/`}})
//	f := fetch.NewHTTPFetcher(fetch.NewHTTPClient(fetch.ClientOptions{}))
//	engine := crawler.NewEngine(sc, f, crawler.WithScriptFetcher(f))
//	inv, err := engine.Crawl(ctx, seeds, func(a model.Address) { fmt.Println(a) })
//
// Stop, or cancelling ctx, lets in-flight workers finish and returns the
// partial inventory.
package crawler
