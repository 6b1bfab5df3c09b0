// Package useragent rotates browser identification strings for outgoing
// requests. It reduces trivial bot blocking and is not a security control.
package useragent

import "math/rand/v2"

// Pool is the fixed set of browser User-Agent strings
var Pool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.107 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:90.0) Gecko/20100101 Firefox/90.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 11.5; rv:90.0) Gecko/20100101 Firefox/90.0",
}

// Random returns a User-Agent chosen uniformly from Pool
func Random() string {
	return Pool[rand.IntN(len(Pool))]
}
