// Package scope implements the include/exclude policy that decides which
// addresses may enter the crawl frontier.
//
// A scope document has two optional ordered lists of regular expressions:
//
//	include:
//	  - https://app\.example\.com
//	exclude:
//	  - https://app\.example\.com/logout
//
// Patterns are anchored at the start of the URL, so a plain URL prefix works
// as a pattern. The matcher fails closed: with no include patterns nothing is
// in scope.
package scope
