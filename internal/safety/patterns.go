package safety

import "regexp"

// Detection patterns grouped by category. Each pattern's first capture
// group is the phrase quoted back in the finding.
var (
	bullyingPatterns = compilePatterns(
		`\b(stupid|dumb|idiot|loser|freak|weirdo|ugly|fat|gay)\b`,
		`\b(kill yourself|kys|die|hate you|nobody likes you)\b`,
		`\b(shut up|go away|leave me alone|you suck)\b`,
		`\b(crybaby|baby|pathetic|worthless|useless)\b`,
	)

	groomingPatterns = compilePatterns(
		`\b(secret|don't tell|between us|our little secret)\b`,
		`\b(meet me|come over|where do you live|send me)\b`,
		`\b(special friend|mature for your age|trust me)\b`,
		`\b(delete this|clear history|private message)\b`,
		`\b(photo|picture|pic|video|cam|webcam)\b.*\b(send|show|share)\b`,
	)

	inappropriatePatterns = compilePatterns(
		`\b(sex|sexual|naked|nude|body|private parts)\b`,
		`\b(touch|kiss|hug|cuddle)\b.*\b(want|like|love)\b`,
		`\b(boyfriend|girlfriend|relationship|dating)\b`,
	)

	scamPatterns = compilePatterns(
		`\b(free|win|prize|money|gift|reward)\b`,
		`\b(click|link|website|download|install)\b`,
		`\b(password|login|account|personal info)\b`,
	)

	shouting        = regexp.MustCompile(`\b[A-Z]{4,}\b`)
	personalRequest = regexp.MustCompile(`\b(how old|age|grade|school)\b`)
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}
