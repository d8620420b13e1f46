package application

import (
	"fmt"
	"strings"
)

// Comment bodies posted to the code host. The initial prompt doubles as the
// PR's single status comment; its id is recorded and the body is rewritten in
// place as the PR moves through the lifecycle.
const (
	commentReviewerPrompt = "👋 Hi! Would you like to pick specific reviewers for this PR? " +
		"If yes, please mention them in a comment. " +
		"If not, I'll automatically assign reviewers for you. " +
		"Please respond within 24 hours."

	commentDraft = "📝 This PR is a draft. Reviewer assignment is paused until it is marked ready for review."

	commentApproved = "✅ This PR has been approved! " +
		"Would you like another round of review? " +
		"Please let me know in a comment."

	commentChangesRequested = "📝 Changes have been requested. " +
		"Please address the feedback and let me know when you're ready for another review."

	// secondReviewerMarker identifies the second-reviewer prompt when scanning
	// existing comments, so the prompt is posted at most once per PR.
	secondReviewerMarker = "Would you like a second reviewer?"

	commentReviewerRemoved = "👋 A requested reviewer was removed. " +
		"Please pick a replacement reviewer, or I'll keep the remaining assignments as they are."
)

// secondReviewerPrompt asks the author whether a second reviewer should be
// assigned after the first review completes.
func secondReviewerPrompt() string {
	return "🎉 The first review is in! " + secondReviewerMarker +
		" Mention them in a comment, or I'll pick the least busy one for you."
}

// reviewInProgressComment is the status comment body while reviews are
// outstanding.
func reviewInProgressComment(reviewers []string) string {
	if len(reviewers) == 0 {
		return "👀 A review has been requested."
	}
	return fmt.Sprintf("👀 Review requested from %s. I'll send a gentle reminder if it goes quiet.", tagReviewers(reviewers))
}

// reminderComment builds the numbered reminder posted on a stalled review.
// n is the 1-based reminder number.
func reminderComment(n int, reviewers []string) string {
	return fmt.Sprintf(
		"🔔 %s Reminder\n\n"+
			"Hey %s! This PR has been waiting for your review.\n"+
			"Please take a look when you have a chance. If you're unable to review, "+
			"please let us know so we can find another reviewer.",
		ordinal(n), tagReviewers(reviewers),
	)
}

// tagReviewers renders "@alice @bob" mentions.
func tagReviewers(reviewers []string) string {
	tags := make([]string, len(reviewers))
	for i, r := range reviewers {
		tags[i] = "@" + r
	}
	return strings.Join(tags, " ")
}

// ordinal renders 1 -> "1st", 2 -> "2nd", 11 -> "11th", and so on.
func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
