package launcher

// Token is the opaque per-process routing key that identifies one
// caller-endpoint/launcher-endpoint pair for the lifetime of a
// Multiplexer. Tokens are minted by Multiplexer.NewToken and never reused
// within that multiplexer's lifetime.
type Token uint64
