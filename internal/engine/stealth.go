package engine

import stealth "github.com/anatolykoptev/go-stealth"

// RandomUserAgent returns a desktop browser User-Agent for watch page scrapes.
func RandomUserAgent() string { return stealth.RandomUserAgent() }
