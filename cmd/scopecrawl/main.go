// Package main provides the entry point for the scopecrawl CLI.
//
// scopecrawl discovers every address of a web application that falls inside
// an include/exclude scope, following links and URLs embedded in scripts.
//
// Usage:
//
//	scopecrawl crawl -i 'https://app\.example\.com/' https://app.example.com/
//	scopecrawl crawl -s scope.yaml -L seeds.txt
//
// See --help for all available options.
package main

func main() {
	Execute()
}
