package telemetry

// EstimateCost multiplies per-1K input/output rates by the token counts.
func EstimateCost(costInputPer1K, costOutputPer1K float64, tokensIn, tokensOut int) float64 {
	inputCost := costInputPer1K / 1000 * float64(tokensIn)
	outputCost := costOutputPer1K / 1000 * float64(tokensOut)
	return inputCost + outputCost
}

// EstimateTokens approximates prompt tokens from character count using a
// 4-chars-per-token heuristic.
func EstimateTokens(chars int) int {
	return (chars + 3) / 4
}
