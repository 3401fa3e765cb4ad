// Package dispatch executes send attempts against platform adapters.
//
// The scheduler submits (campaign, target) jobs; one worker per platform
// drains them serially so the rate limiter's check-and-update stays atomic
// per platform, while distinct platforms proceed concurrently. A slow or
// blocked adapter therefore never stalls the tick loop or other platforms.
//
// Gate order inside a job is fixed: campaign still active, consent,
// content policy, rate limit, quota, adapter. Every attempt is appended to
// the log before the quota counter is touched, and quota is consumed only
// for sent outcomes.
package dispatch
