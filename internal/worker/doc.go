// Package worker implements the cache router that sits in front of every
// request the converter pages issue.
//
// A Worker is one deploy generation. It precaches the application shell during
// Install, prunes stores left by earlier generations during Activate, and then
// routes each intercepted GET request by class:
//
//	RateData  network-first into the runtime store, cached copy when offline
//	Shell     network-first into the shell store, fallback document when offline
//	Other     cache-first with a background revalidation into the runtime store
//
// A Controller holds the active and waiting generations and swaps them
// atomically, so a new version takes over without a restart.
package worker
