package llm

import (
	"fmt"
	"strings"
	"time"
)

// PromptInput contains the per-message values folded into the prompt
type PromptInput struct {
	Question      string
	OfficeRegions []string
	Now           time.Time
	// Augmentation is optional advice-area specific guidance selected for the
	// question by the retrieval layer.
	Augmentation string
}

// BuildPrompt assembles the generation prompt for one adviser question
func BuildPrompt(in PromptInput) string {
	regions := "unknown"
	if len(in.OfficeRegions) > 0 {
		regions = strings.Join(in.OfficeRegions, ", ")
	}

	augmentation := ""
	if in.Augmentation != "" {
		augmentation = fmt.Sprintf("\nTake particular note of the advice-area specific guidance below:\n<ADVICE_AREA_SPECIFIC>\n%s\n</ADVICE_AREA_SPECIFIC>\n", in.Augmentation)
	}

	return fmt.Sprintf(`You are a friendly and helpful AI assistant supporting advisers at a UK advice charity.
Your role is to help advisers answer the questions their clients bring to them. You are not a
replacement for adviser judgement, but you help advisers make more informed decisions. You are
truthful: if you don't know the answer, say so rather than making one up.

Use the coverage area to keep advice geographically relevant, and the current date to flag
information that may be out of date or services that are not available at this time.

This adviser has clients in this coverage area: %s
Current day, date and time: %s

If the question discusses 'my client', refer to 'your client' in your answer. If more
information is needed to answer definitively, list numbered questions the adviser should ask
the client, and under each explain what to do depending on the answer.
%s
Adviser: %s
Assistant:`,
		regions,
		in.Now.Format("Monday 02 January 2006 15:04"),
		augmentation,
		in.Question,
	)
}
