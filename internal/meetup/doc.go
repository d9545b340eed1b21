// Package meetup implements the Meetup API client and OAuth2 flow.
//
// Client wraps the REST endpoints the bot needs with rate limiting, a
// circuit breaker, and classified retries. OAuth drives the web based
// account linking (consent URL, code exchange, member lookup).
package meetup
