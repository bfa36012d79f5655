package rating

// Title buckets derived from a user's historical max rating.
const (
	TitleLegendaryGrandmaster = "Legendary Grandmaster"
	TitleGrandmaster          = "Grandmaster"
	TitleMaster               = "Master"
	TitleCandidateMaster      = "Candidate Master"
	TitleExpert               = "Expert"
	TitleSpecialist           = "Specialist"
	TitleNewbie               = "Newbie"
)

// TitleFor maps a max rating to its title tier.
func TitleFor(maxRating int) string {
	switch {
	case maxRating >= 2400:
		return TitleLegendaryGrandmaster
	case maxRating >= 2100:
		return TitleGrandmaster
	case maxRating >= 1900:
		return TitleMaster
	case maxRating >= 1600:
		return TitleCandidateMaster
	case maxRating >= 1400:
		return TitleExpert
	case maxRating >= 1200:
		return TitleSpecialist
	default:
		return TitleNewbie
	}
}
