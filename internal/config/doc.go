// Package config holds the options of a crawl run, their defaults and
// validation, and the optional .scopecrawl YAML file that supplies scope,
// request headers and cookies per host.
package config
