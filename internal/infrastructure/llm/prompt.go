package llm

import (
	"fmt"
	"strings"

	"emailfilter/internal/domain/mail"
)

// DefaultIndicesCriteria is the rule set sent with the indices protocol.
const DefaultIndicesCriteria = `You are filtering junk mail. Only delete the ABSOLUTE most heinous spam. Don't mistake simple marketing from local businesses or legitimate services.

DELETE only:
- Obvious phishing/scams (fake verification, fake cloud storage warnings)
- Basically ALL casino related stuff
- Dangerous malware/fraud attempts
- Clearly fake sender addresses

KEEP things like:
- Legitimate service notifications (AWS, Google, etc.)
- Newsletters from real companies
- Job alerts and recruitment emails
- Local business marketing
- Financial service updates
- Artist/creator updates
- Microsoft's reward promotions (they are real though cringe)`

// DefaultDigitsCriteria is the compact rule set sent with the digits protocol.
const DefaultDigitsCriteria = "Delete only obvious phishing/scams, casino promos (e.g., 'Free Spins'), " +
	"malware/fraud, clearly fake senders, fake giveaway bait (e.g., 'Free car repair kit', " +
	"'Free Yeti Tumbler'), money-eyes emoji bait, and sketchy 'You've got $$$' hooks. " +
	"Keep legitimate service notices, real newsletters, job/recruiter mail, local marketing, " +
	"financial updates, artist/creator updates, and Microsoft's Rewards promos."

const (
	indicesPreviewLen = 100
	digitsPreviewLen  = 200
)

const digitsSystemPrompt = "You are a binary classifier for junk mail in the Junk folder. " +
	"For each numbered email reply with one character: '1' to delete, '0' to keep. " +
	"Reply with the characters only, in order, with no spaces or other text."

func indicesPrompt(criteria string, batch []mail.Message) string {
	var b strings.Builder
	b.WriteString(criteria)
	b.WriteString("\n\nHere are the emails (numbered):\n\n")
	for i, m := range batch {
		fmt.Fprintf(&b, "%d. FROM: %s | SUBJECT: %s\n", i, m.Sender, m.Subject)
		if m.Preview != "" {
			fmt.Fprintf(&b, "   PREVIEW: %s\n", truncate(m.Preview, indicesPreviewLen))
		}
	}
	b.WriteString("\nRespond with ONLY a JSON array of indices to delete, nothing else.\n")
	b.WriteString("Example: [0, 2, 5] or [] if nothing should be deleted.\n")
	return b.String()
}

func digitsPrompt(criteria string, batch []mail.Message) string {
	var b strings.Builder
	b.WriteString(criteria)
	b.WriteString("\n\nEmails to classify:\n\n")
	for i, m := range batch {
		fmt.Fprintf(&b, "%d.\nFROM: %s\nSUBJECT: %s\nPREVIEW: %s\n\n", i, m.Sender, m.Subject, truncate(m.Preview, digitsPreviewLen))
	}
	fmt.Fprintf(&b, "Return ONLY %d characters, each '1' or '0', one per email in the order above.", len(batch))
	return b.String()
}

// truncate cuts s to at most n runes and flattens newlines.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
