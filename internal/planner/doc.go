// Package planner turns a topic, a fixed script, or long-form content into
// an ordered list of narration segments.
//
// Topic and content sources ask the LLM to write narrations. A fixed script
// is only split by the LLM; every returned piece is aligned back onto the
// original text so the narrations are exact substrings of the script and
// nothing is paraphrased, reordered, dropped, or added.
//
// The planner does not retry on its own. Network retries belong to the
// gateway policy and the relaxed planning retry belongs to the orchestrator.
package planner
