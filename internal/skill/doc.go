// Package skill maps high-level user intents onto sequences of tool calls.
//
// A skill is a recipe: browse recent articles, read one article with its
// comments, publish a new one. The Router executes recipes over any
// Invoker, composing a single Reply from the step results. When a step
// fails the reply short-circuits and names the failing step, so callers
// never see a half-composed answer presented as a whole one.
//
// Read-only skills retry rate limits and timeouts with exponential
// backoff. The publish skill is the opposite: its tool call is issued
// exactly once, a recent-title guard refuses look-alike submissions, and
// every attempt lands in the publish ledger so ambiguous outcomes can be
// reconciled by hand.
//
// Additional read-only skills can be declared in a TOML catalog; see
// LoadCatalog.
package skill
