// Package intercept serializes speech-synthesis calls made by the chat page.
//
// Transport is an http.RoundTripper installed in front of the upstream chat
// site. Calls whose URL contains the synthesis marker are queued in strict
// FIFO order and executed one at a time by a single worker; every other call
// passes straight through. A completed call is handed to a Deliverer as a
// Message carrying the audio as a base64 data URL. Failed calls ask a Decider
// whether to retry the job at the head of the queue or skip it.
package intercept
