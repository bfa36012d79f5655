package worker

// CompetitionRanks assigns standard competition ranks to scores that are
// already sorted descending: tied scores share the lower rank and the next
// distinct score jumps past the tie (100,100,90 -> 1,1,3).
func CompetitionRanks(scores []int) []int {
	ranks := make([]int, len(scores))
	for i := range scores {
		if i > 0 && scores[i] == scores[i-1] {
			ranks[i] = ranks[i-1]
		} else {
			ranks[i] = i + 1
		}
	}
	return ranks
}
