// Package inject turns captured state into additions on an outgoing prompt
// via composable named strategies. Strategies never remove or reorder
// existing messages; they contribute ordered context blocks that the pipeline
// assembles once and prepends as system messages, layered foundational →
// organizational → conversational.
//
// The pipeline executes strategies in a fixed order (startup → context →
// optional search → optional mcp) so the final message order is deterministic
// regardless of what each strategy contributes.
package inject
