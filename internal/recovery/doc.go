/*
Package recovery repairs and validates semi-structured model output.

Language models asked for JSON routinely return it wrapped in Markdown
fences, embedded in prose, truncated mid-structure, or with dangling
separators. This package turns those near-misses into typed records.

Recovery is staged: a direct parse is tried first, then fence stripping,
then extraction of the first balanced object or array from mixed text. An
explicit string-aware scanner repairs structural defects (unterminated
strings, dangling commas, unbalanced brackets) before each attempt, and
every candidate is validated against the caller's declared Schema before
being accepted.

The parser fails soft. Exhausting all stages returns false rather than an
error, because malformed output is an expected condition the caller handles
with a fallback, not a crash.
*/
package recovery
